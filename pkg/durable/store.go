// Package durable defines the contract the admission core expects from the
// system of record, together with an in-memory implementation for tests and
// single-instance deployments.
//
// The durable store is the slow source of truth: it knows every resource's
// configured capacity and which holders currently occupy it. The admission
// core never serializes requests through it; it only reads true counts when
// materializing or healing the fast store, and appends holder records behind
// the write-behind queue.
package durable

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Resource describes one capacity-limited resource.
type Resource struct {
	ID         string
	Name       string
	MaxHolders int64
}

// ResourceCount pairs a resource id with its active holder count.
type ResourceCount struct {
	ResourceID string
	Holders    int64
}

// Store is the durable record store the core consumes.
//
// InsertIfAbsent must enforce (holderID, resourceID) uniqueness itself and
// report a duplicate as (false, nil), never as an error: the drain worker
// relies on that to make retried writes idempotent.
type Store interface {
	// Resource returns the resource definition, or ErrNotFound.
	Resource(ctx context.Context, id string) (Resource, error)

	// CountActiveHolders returns the number of holders currently occupying
	// the resource.
	CountActiveHolders(ctx context.Context, id string) (int64, error)

	// InsertIfAbsent records holderID as occupying resourceID. It returns
	// false without error when the pair already exists.
	InsertIfAbsent(ctx context.Context, holderID, resourceID string) (bool, error)

	// TopByActiveHolders returns up to limit resources ordered by active
	// holder count descending, skipping ids present in exclude.
	TopByActiveHolders(ctx context.Context, limit int, exclude map[string]bool) ([]ResourceCount, error)
}
