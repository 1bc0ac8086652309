// Package bbolt provides a BBolt-backed implementation of casekeys.Store,
// the default embedded backend for the server.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/casevault/casevault/casekeys"
)

var (
	bucketPrincipals = []byte("principals")
	bucketCases      = []byte("cases")
)

// Store implements casekeys.Store backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ casekeys.Store = (*Store)(nil)

// NewStore returns a Store backed by the given BBolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketPrincipals, bucketCases} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a BBolt database at the given path.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetPrincipal(_ context.Context, id string) (*casekeys.Principal, error) {
	var p casekeys.Principal
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPrincipals).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("principal %s: %w", id, casekeys.ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) PutPrincipal(_ context.Context, p casekeys.Principal) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPrincipals).Put([]byte(p.ID), data)
	})
}

func (s *Store) ListActivePrincipals(_ context.Context, kind casekeys.PrincipalKind) ([]casekeys.Principal, error) {
	var out []casekeys.Principal
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPrincipals).ForEach(func(_, v []byte) error {
			var p casekeys.Principal
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if kind == "" || p.Kind == kind {
				out = append(out, p)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) GetCase(_ context.Context, id string) (*casekeys.Case, error) {
	var c casekeys.Case
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCases).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("case %s: %w", id, casekeys.ErrNotFound)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) PutCase(_ context.Context, c casekeys.Case) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCases).Put([]byte(c.ID), data)
	})
}

func (s *Store) CaseExists(_ context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketCases).Get([]byte(id)) != nil
		return nil
	})
	return exists, err
}

func (s *Store) CasePage(_ context.Context, afterID string, limit int) ([]casekeys.Case, error) {
	var out []casekeys.Case
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCases).Cursor()
		k, v := c.Seek([]byte(afterID))
		// Seek lands on afterID itself when it exists; the page is strictly after.
		if k != nil && bytes.Equal(k, []byte(afterID)) {
			k, v = c.Next()
		}
		for ; k != nil; k, v = c.Next() {
			var cs casekeys.Case
			if err := json.Unmarshal(v, &cs); err != nil {
				return err
			}
			out = append(out, cs)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// mergeEnvelope sets exactly key_envelopes[principalID] inside the given
// write transaction, leaving sibling entries intact.
func mergeEnvelope(tx *bbolt.Tx, u casekeys.EnvelopeUpdate) error {
	b := tx.Bucket(bucketCases)
	data := b.Get([]byte(u.CaseID))
	if data == nil {
		return fmt.Errorf("case %s: %w", u.CaseID, casekeys.ErrNotFound)
	}
	var c casekeys.Case
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	if c.KeyEnvelopes == nil {
		c.KeyEnvelopes = make(casekeys.KeyEnvelopeMap)
	}
	c.KeyEnvelopes[u.PrincipalID] = u.Envelope
	merged, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.Put([]byte(u.CaseID), merged)
}

func (s *Store) UpdateEnvelope(_ context.Context, caseID, principalID, envelope string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return mergeEnvelope(tx, casekeys.EnvelopeUpdate{
			CaseID:      caseID,
			PrincipalID: principalID,
			Envelope:    envelope,
		})
	})
}

func (s *Store) BatchUpdateEnvelopes(_ context.Context, updates []casekeys.EnvelopeUpdate) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, u := range updates {
			if err := mergeEnvelope(tx, u); err != nil {
				return err
			}
		}
		return nil
	})
}
