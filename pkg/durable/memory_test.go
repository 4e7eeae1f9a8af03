package durable

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.AddResource(Resource{ID: "course-1", Name: "algorithms", MaxHolders: 10})

	inserted, err := store.InsertIfAbsent(ctx, "student-1", "course-1")
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.InsertIfAbsent(ctx, "student-1", "course-1")
	require.NoError(t, err)
	require.False(t, inserted, "duplicate pair must be reported without error")

	count, err := store.CountActiveHolders(ctx, "course-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestMemory_ResourceNotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.Resource(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_TopByActiveHolders(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		store.AddResource(Resource{ID: id, MaxHolders: 5})
	}
	store.SeedHolder("h1", "b")
	store.SeedHolder("h2", "b")
	store.SeedHolder("h3", "c")

	top, err := store.TopByActiveHolders(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "b", top[0].ResourceID)
	require.Equal(t, int64(2), top[0].Holders)
	require.Equal(t, "c", top[1].ResourceID)

	top, err = store.TopByActiveHolders(ctx, 2, map[string]bool{"b": true})
	require.NoError(t, err)
	require.Equal(t, "c", top[0].ResourceID)
}

func TestMemory_SetFailing(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.AddResource(Resource{ID: "r", MaxHolders: 1})

	boom := errors.New("disk on fire")
	store.SetFailing(boom)
	_, err := store.InsertIfAbsent(ctx, "h", "r")
	require.ErrorIs(t, err, boom)

	store.SetFailing(nil)
	_, err = store.InsertIfAbsent(ctx, "h", "r")
	require.NoError(t, err)
}
