package writebehind

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// DefaultDrainInterval is how often the worker drains when not configured.
const DefaultDrainInterval = time.Second

// Worker drains the queue on a fixed interval. Running several workers
// against the same queue is safe and only increases throughput; the atomic
// pop prevents double-processing.
type Worker struct {
	queue    *Queue
	interval time.Duration
	clk      clock.Clock
	log      zerolog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithInterval overrides DefaultDrainInterval.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.interval = d }
}

// WithClock injects the clock; tests use clock.NewMock.
func WithClock(clk clock.Clock) WorkerOption {
	return func(w *Worker) { w.clk = clk }
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(log zerolog.Logger) WorkerOption {
	return func(w *Worker) { w.log = log }
}

// NewWorker wires a drain worker over a queue.
func NewWorker(queue *Queue, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:    queue,
		interval: DefaultDrainInterval,
		clk:      clock.New(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains on every tick until the context ends. Drain errors are logged
// and the loop continues; the failed entry is already back at the queue head
// waiting for the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := w.clk.Ticker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Msg("drain worker running")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("drain worker stopped")
			return ctx.Err()
		case <-ticker.C:
			processed, err := w.queue.DrainOnce(ctx)
			if err != nil {
				w.log.Error().Err(err).Int("processed", processed).Msg("drain cycle failed")
				continue
			}
			if processed > 0 {
				w.log.Info().Int("processed", processed).Msg("drain cycle complete")
			}
		}
	}
}
