// Package memory provides a thread-safe in-memory implementation of
// casekeys.Store. Suitable for testing, demos, and single-process use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/casevault/casevault/casekeys"
)

// Store is an in-memory casekeys.Store.
type Store struct {
	mu         sync.RWMutex
	principals map[string]casekeys.Principal
	cases      map[string]casekeys.Case

	// failNext makes upcoming operations fail with ErrStoreUnavailable.
	// Tests use it to exercise transient-failure paths.
	failNext atomic.Int32
}

var _ casekeys.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		principals: make(map[string]casekeys.Principal),
		cases:      make(map[string]casekeys.Case),
	}
}

// FailNext arranges for the next n operations to return ErrStoreUnavailable.
func (s *Store) FailNext(n int) {
	s.failNext.Store(int32(n))
}

func (s *Store) checkAvailable() error {
	for {
		n := s.failNext.Load()
		if n <= 0 {
			return nil
		}
		if s.failNext.CompareAndSwap(n, n-1) {
			return casekeys.ErrStoreUnavailable
		}
	}
}

func (s *Store) GetPrincipal(_ context.Context, id string) (*casekeys.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return nil, err
	}
	p, ok := s.principals[id]
	if !ok {
		return nil, fmt.Errorf("principal %s: %w", id, casekeys.ErrNotFound)
	}
	cp := p
	return &cp, nil
}

func (s *Store) PutPrincipal(_ context.Context, p casekeys.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return err
	}
	s.principals[p.ID] = p
	return nil
}

func (s *Store) ListActivePrincipals(_ context.Context, kind casekeys.PrincipalKind) ([]casekeys.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return nil, err
	}
	var out []casekeys.Principal
	for _, p := range s.principals {
		if kind == "" || p.Kind == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetCase(_ context.Context, id string) (*casekeys.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return nil, err
	}
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, casekeys.ErrNotFound)
	}
	cp := c
	cp.KeyEnvelopes = c.KeyEnvelopes.Clone()
	return &cp, nil
}

func (s *Store) PutCase(_ context.Context, c casekeys.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return err
	}
	c.KeyEnvelopes = c.KeyEnvelopes.Clone()
	s.cases[c.ID] = c
	return nil
}

func (s *Store) CaseExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return false, err
	}
	_, ok := s.cases[id]
	return ok, nil
}

func (s *Store) CasePage(_ context.Context, afterID string, limit int) ([]casekeys.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.cases))
	for id := range s.cases {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]casekeys.Case, 0, len(ids))
	for _, id := range ids {
		c := s.cases[id]
		c.KeyEnvelopes = c.KeyEnvelopes.Clone()
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) UpdateEnvelope(_ context.Context, caseID, principalID, envelope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return err
	}
	return s.mergeLocked(caseID, principalID, envelope)
}

// mergeLocked sets exactly key_envelopes[principalID]; sibling entries are
// never touched.
func (s *Store) mergeLocked(caseID, principalID, envelope string) error {
	c, ok := s.cases[caseID]
	if !ok {
		return fmt.Errorf("case %s: %w", caseID, casekeys.ErrNotFound)
	}
	merged := c.KeyEnvelopes.Clone()
	merged[principalID] = envelope
	c.KeyEnvelopes = merged
	s.cases[caseID] = c
	return nil
}

func (s *Store) BatchUpdateEnvelopes(_ context.Context, updates []casekeys.EnvelopeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return err
	}
	for _, u := range updates {
		if err := s.mergeLocked(u.CaseID, u.PrincipalID, u.Envelope); err != nil {
			return err
		}
	}
	return nil
}
