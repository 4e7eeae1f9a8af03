package writebehind

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisQueueStore_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	defer client.Close()

	prefix := fmt.Sprintf("wb_it_%d:", time.Now().UnixNano())
	store, err := NewRedisQueueStore(client, WithPrefix(prefix))
	if err != nil {
		t.Fatalf("Failed to create RedisQueueStore: %v", err)
	}

	t.Run("PushPopUnpop", func(t *testing.T) {
		a := Entry{QueueID: "a", HolderID: "s1", ResourceID: "course-1", EnqueuedAt: time.Now().UTC()}
		b := Entry{QueueID: "b", HolderID: "s2", ResourceID: "course-1", EnqueuedAt: time.Now().UTC()}
		if err := store.Push(ctx, a); err != nil {
			t.Fatal(err)
		}
		if err := store.Push(ctx, b); err != nil {
			t.Fatal(err)
		}

		entry, ok, err := store.Pop(ctx)
		if err != nil || !ok {
			t.Fatalf("pop failed: %v ok=%v", err, ok)
		}
		if entry.QueueID != "a" {
			t.Fatalf("expected FIFO order, got %q", entry.QueueID)
		}

		if err := store.Unpop(ctx, entry); err != nil {
			t.Fatal(err)
		}
		entry, _, err = store.Pop(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if entry.QueueID != "a" {
			t.Fatalf("unpopped entry must come back first, got %q", entry.QueueID)
		}
	})

	t.Run("EmptyPop", func(t *testing.T) {
		empty, err := NewRedisQueueStore(client, WithPrefix(prefix+"empty:"))
		if err != nil {
			t.Fatal(err)
		}
		_, ok, err := empty.Pop(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected empty queue")
		}
	})

	t.Run("ResultRoundTrip", func(t *testing.T) {
		result := Result{QueueID: "q1", HolderID: "s1", ResourceID: "course-1", State: StatePending, Granted: true}
		if err := store.SetResult(ctx, result, time.Minute); err != nil {
			t.Fatal(err)
		}
		got, ok, err := store.Result(ctx, "q1")
		if err != nil || !ok {
			t.Fatalf("result fetch failed: %v ok=%v", err, ok)
		}
		if got.State != StatePending || !got.Granted {
			t.Fatalf("unexpected result %+v", got)
		}

		_, ok, err = store.Result(ctx, "never")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected missing result")
		}
	})
}
