package casekeys

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casevault/casevault/crypto"
)

// Registry caches the public key of every active principal so that fan-out
// and backfill never need a store round-trip per wrap. It is mutated only by
// Refresh (wholesale swap) and Add (single-entry upsert); readers get
// copy-on-read snapshots and never iterate the live map.
type Registry struct {
	store Store
	log   *slog.Logger

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the structured logger. Defaults to slog.Default.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = log
	}
}

// NewRegistry creates an empty registry over the given store. Call Refresh
// (or Run) to populate it.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store: store,
		keys:  make(map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Refresh reloads every active principal from the store and swaps the cache
// wholesale. On store failure the last-known-good snapshot stays in place and
// the error is returned for the caller to log; a degraded refresh is never
// allowed to empty a previously good cache.
func (r *Registry) Refresh(ctx context.Context) error {
	principals, err := r.store.ListActivePrincipals(ctx, "")
	if err != nil {
		return fmt.Errorf("listing active principals: %w", err)
	}

	fresh := make(map[string]*rsa.PublicKey, len(principals))
	for _, p := range principals {
		pub, err := crypto.ParsePublicKeyPEM([]byte(p.PublicKeyPEM))
		if err != nil {
			r.log.Warn("skipping principal with malformed public key",
				"principal_id", p.ID, "kind", string(p.Kind), "error", err)
			continue
		}
		fresh[p.ID] = pub
	}

	r.mu.Lock()
	r.keys = fresh
	r.mu.Unlock()
	return nil
}

// Add upserts a single principal's key without a full refresh, so operations
// issued immediately after enrollment already see it. Idempotent.
func (r *Registry) Add(id string, pub *rsa.PublicKey) {
	r.mu.Lock()
	r.keys[id] = pub
	r.mu.Unlock()
}

// Snapshot returns a read-only copy of the cache. Callers own the copy and
// can iterate it while the registry is concurrently refreshed.
func (r *Registry) Snapshot() map[string]*rsa.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*rsa.PublicKey, len(r.keys))
	for id, pub := range r.keys {
		out[id] = pub
	}
	return out
}

// Len reports the current cache size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Run refreshes on a fixed interval until ctx is cancelled. Failed refreshes
// are logged and the loop keeps going with the previous snapshot.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn("registry refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}
