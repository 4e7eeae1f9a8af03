package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edusync/enrollment-gate/config"
	"github.com/edusync/enrollment-gate/pkg/admission"
	"github.com/edusync/enrollment-gate/pkg/durable"
	"github.com/edusync/enrollment-gate/pkg/ranking"
	"github.com/edusync/enrollment-gate/pkg/reconcile"
	"github.com/edusync/enrollment-gate/pkg/writebehind"
)

// stores groups the backends the server runs on, either all Redis or
// all in-memory.
type stores struct {
	capacity admission.CapacityStore
	queue    writebehind.QueueStore
	locks    reconcile.LockStore
	ranks    ranking.RankStore
}

// openStores connects to Redis, falling back to the in-process backends
// when it is unreachable. The memory backends carry the same semantics
// but share nothing across instances, so the fallback only suits a
// single-process deployment.
func openStores(cfg config.Config, log zerolog.Logger) stores {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	capacity, err := admission.NewRedisCapacityStore(client, admission.WithPrefix(cfg.Redis.Prefix+"capacity:"))
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, using in-memory stores")
		return stores{
			capacity: admission.NewMemoryCapacityStore(nil),
			queue:    writebehind.NewMemoryQueueStore(nil),
			locks:    reconcile.NewMemoryLockStore(nil),
			ranks:    ranking.NewMemoryRankStore(nil),
		}
	}
	queue, err := writebehind.NewRedisQueueStore(client, writebehind.WithPrefix(cfg.Redis.Prefix+"writebehind:"))
	if err != nil {
		log.Fatal().Err(err).Msg("queue store init failed")
	}
	locks, err := reconcile.NewRedisLockStore(client)
	if err != nil {
		log.Fatal().Err(err).Msg("lock store init failed")
	}
	ranks, err := ranking.NewRedisRankStore(client, ranking.WithPrefix(cfg.Redis.Prefix+"ranking:"))
	if err != nil {
		log.Fatal().Err(err).Msg("rank store init failed")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	return stores{capacity: capacity, queue: queue, locks: locks, ranks: ranks}
}

// seedDemoData fills the durable store with a few courses so the
// endpoints have something to admit against.
func seedDemoData(db *durable.Memory) {
	db.AddResource(durable.Resource{ID: "course-101", Name: "Intro to Databases", MaxHolders: 3})
	db.AddResource(durable.Resource{ID: "course-202", Name: "Distributed Systems", MaxHolders: 25})
	db.AddResource(durable.Resource{ID: "course-303", Name: "Operating Systems", MaxHolders: 40})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	db := durable.NewMemory()
	seedDemoData(db)

	st := openStores(cfg, log)

	cache := ranking.NewCache(st.ranks, db,
		ranking.WithSize(cfg.Ranking.Size),
		ranking.WithPageSize(cfg.Ranking.PageSize),
		ranking.WithTTL(cfg.Ranking.TTL),
		ranking.WithLogger(log),
	)

	boot := admission.NewBootstrapper(st.capacity, db, cfg.Capacity.RecordTTL, log)
	gate := admission.NewGate(st.capacity, boot,
		admission.WithAttempts(cfg.Capacity.Attempts),
		admission.WithLogger(log),
		admission.WithOnChange(func(ctx context.Context, rec admission.CapacityRecord) {
			cache.Update(ctx, rec.ResourceID, rec.CurrentCount, rec.MaxCount)
		}),
	)

	queue := writebehind.NewQueue(st.queue, db,
		writebehind.WithResultTTL(cfg.Queue.ResultTTL),
		writebehind.WithLogger(log),
	)
	worker := writebehind.NewWorker(queue,
		writebehind.WithInterval(cfg.Queue.DrainInterval),
		writebehind.WithWorkerLogger(log),
	)

	lease := reconcile.NewLease(st.locks, reconcile.DefaultLockKey, cfg.Reconcile.LockTTL)
	reconciler := reconcile.New(st.capacity, db, lease,
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithRecordTTL(cfg.Capacity.RecordTTL),
		reconcile.WithLogger(log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go worker.Run(ctx)
	go reconciler.Run(ctx)

	mux := http.NewServeMux()

	mux.HandleFunc("/reserve", func(w http.ResponseWriter, r *http.Request) {
		resource, holder := r.URL.Query().Get("resource"), r.URL.Query().Get("holder")
		if resource == "" || holder == "" {
			http.Error(w, "resource and holder are required", http.StatusBadRequest)
			return
		}
		out := gate.Reserve(r.Context(), resource, holder)
		status := http.StatusOK
		switch out.Reason {
		case admission.ReasonCapacityExceeded:
			status = http.StatusConflict
		case admission.ReasonNotFound:
			status = http.StatusNotFound
		case admission.ReasonSystemError:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, out)
	})

	mux.HandleFunc("/release", func(w http.ResponseWriter, r *http.Request) {
		resource, holder := r.URL.Query().Get("resource"), r.URL.Query().Get("holder")
		if resource == "" || holder == "" {
			http.Error(w, "resource and holder are required", http.StatusBadRequest)
			return
		}
		gate.Release(r.Context(), resource, holder)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/enqueue", func(w http.ResponseWriter, r *http.Request) {
		resource, holder := r.URL.Query().Get("resource"), r.URL.Query().Get("holder")
		if resource == "" || holder == "" {
			http.Error(w, "resource and holder are required", http.StatusBadRequest)
			return
		}
		queueID, err := queue.Enqueue(r.Context(), holder, resource)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"queueId": queueID})
	})

	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		queueID := r.URL.Query().Get("id")
		if queueID == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}
		result, ok, err := queue.PollResult(r.Context(), queueID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, "unknown or expired queue id", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("/top", func(w http.ResponseWriter, r *http.Request) {
		dim := ranking.Dimension(r.URL.Query().Get("dimension"))
		if dim == "" {
			dim = ranking.ByHolders
		}
		size := 0
		if raw := r.URL.Query().Get("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "size must be an integer", http.StatusBadRequest)
				return
			}
			size = n
		}
		entries, err := cache.Top(r.Context(), dim, size)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}
