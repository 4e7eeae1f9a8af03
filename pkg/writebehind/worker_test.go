package writebehind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestWorker_DrainsOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, _, db := newTestQueue(t)
	mock := clock.NewMock()
	worker := NewWorker(queue, WithClock(mock), WithInterval(time.Second))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	// Let the loop install its ticker before driving the mock clock.
	time.Sleep(20 * time.Millisecond)

	_, err := queue.Enqueue(ctx, "s1", "course-1")
	require.NoError(t, err)

	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		count, err := db.CountActiveHolders(ctx, "course-1")
		return err == nil && count == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_KeepsRunningAfterDrainError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, _, db := newTestQueue(t)
	mock := clock.NewMock()
	worker := NewWorker(queue, WithClock(mock), WithInterval(time.Second))

	_, err := queue.Enqueue(ctx, "s1", "course-1")
	require.NoError(t, err)
	db.SetFailing(errors.New("db down"))

	go func() { _ = worker.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	mock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)

	// Entry survived the failed cycle; healing the store lets the next tick
	// complete it.
	n, err := queue.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	db.SetFailing(nil)
	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		count, err := db.CountActiveHolders(ctx, "course-1")
		return err == nil && count == 1
	}, time.Second, 5*time.Millisecond)
}
