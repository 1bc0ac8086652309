package casekeys

import (
	"context"
	"fmt"
	"sync"

	"github.com/casevault/casevault/internal/util"
)

// Default allocation parameters used by the case creation flow.
const (
	DefaultIDLength  = 8
	DefaultMaxTrials = 5
)

// IDAllocator produces short, human-enterable, store-unique case ids. A
// candidate that exists in the store, or that another in-flight creation has
// reserved but not yet committed, counts as a collision.
type IDAllocator struct {
	store Store

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewIDAllocator creates an allocator over the given store.
func NewIDAllocator(store Store) *IDAllocator {
	return &IDAllocator{
		store:    store,
		reserved: make(map[string]struct{}),
	}
}

// Allocate returns preferred if it is free, otherwise up to maxTrials-1 fresh
// random candidates of the given length are tried. The returned id is
// reserved until Commit or Release. Fails with ErrAllocationExhausted once
// the trial budget is spent; record creation must never proceed with a
// colliding id.
func (a *IDAllocator) Allocate(ctx context.Context, preferred string, maxTrials, length int) (string, error) {
	if maxTrials < 1 {
		return "", fmt.Errorf("maxTrials must be at least 1")
	}
	if length < 1 {
		length = DefaultIDLength
	}

	candidate := preferred
	for trial := 0; trial < maxTrials; trial++ {
		if candidate == "" {
			fresh, err := util.RandomChars(length)
			if err != nil {
				return "", fmt.Errorf("generating candidate id: %w", err)
			}
			candidate = fresh
		}

		free, err := a.tryReserve(ctx, candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}

		candidate = ""
	}
	return "", fmt.Errorf("%w: after %d trials", ErrAllocationExhausted, maxTrials)
}

// tryReserve reserves candidate iff it is neither reserved in-flight nor
// present in the store. The reservation is taken before the store check so
// two concurrent creations cannot both pass the existence probe and pick the
// same fresh id.
func (a *IDAllocator) tryReserve(ctx context.Context, candidate string) (bool, error) {
	a.mu.Lock()
	if _, taken := a.reserved[candidate]; taken {
		a.mu.Unlock()
		return false, nil
	}
	a.reserved[candidate] = struct{}{}
	a.mu.Unlock()

	exists, err := a.store.CaseExists(ctx, candidate)
	if err != nil {
		a.Release(candidate)
		return false, fmt.Errorf("checking case id %s: %w", candidate, err)
	}
	if exists {
		a.Release(candidate)
		return false, nil
	}
	return true, nil
}

// Commit drops the in-flight reservation once the case is durably stored;
// from then on the store's own existence check covers the id.
func (a *IDAllocator) Commit(id string) {
	a.Release(id)
}

// Release frees a reservation for an id whose creation was abandoned.
func (a *IDAllocator) Release(id string) {
	a.mu.Lock()
	delete(a.reserved, id)
	a.mu.Unlock()
}
