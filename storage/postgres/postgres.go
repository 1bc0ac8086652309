// Package postgres implements casekeys.Store backed by PostgreSQL.
//
// The envelope map is stored as a jsonb column and updated with jsonb_set so
// that a backfill merges exactly one principal's entry without ever rewriting
// the whole map — the database enforces the same per-field discipline the
// in-memory and BBolt backends implement by hand. Batch commits use pgx's
// implicit-transaction batching.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casevault/casevault/casekeys"
)

// Store implements casekeys.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ casekeys.Store = (*Store)(nil)

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures the
// schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool), nil
}

// EnsureSchema creates the principals and cases tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS principals (
			id             TEXT PRIMARY KEY,
			kind           TEXT NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			public_key_pem TEXT NOT NULL,
			enrolled_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS cases (
			id                 TEXT PRIMARY KEY,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_by         TEXT NOT NULL DEFAULT '',
			encrypted_blob_url TEXT NOT NULL DEFAULT '',
			key_envelopes      JSONB NOT NULL DEFAULT '{}'::jsonb
		);
	`)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// storeErr maps connection-level failures to the transient sentinel the
// domain layer reports without retrying.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", casekeys.ErrStoreUnavailable, err)
}

func (s *Store) GetPrincipal(ctx context.Context, id string) (*casekeys.Principal, error) {
	var p casekeys.Principal
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, name, public_key_pem, enrolled_at FROM principals WHERE id = $1`,
		id).Scan(&p.ID, &p.Kind, &p.Name, &p.PublicKeyPEM, &p.EnrolledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("principal %s: %w", id, casekeys.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &p, nil
}

func (s *Store) PutPrincipal(ctx context.Context, p casekeys.Principal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO principals (id, kind, name, public_key_pem, enrolled_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id)
		 DO UPDATE SET kind = $2, name = $3, public_key_pem = $4, enrolled_at = $5`,
		p.ID, p.Kind, p.Name, p.PublicKeyPEM, p.EnrolledAt)
	return storeErr(err)
}

func (s *Store) ListActivePrincipals(ctx context.Context, kind casekeys.PrincipalKind) ([]casekeys.Principal, error) {
	query := `SELECT id, kind, name, public_key_pem, enrolled_at FROM principals ORDER BY id`
	args := []any{}
	if kind != "" {
		query = `SELECT id, kind, name, public_key_pem, enrolled_at FROM principals WHERE kind = $1 ORDER BY id`
		args = append(args, string(kind))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []casekeys.Principal
	for rows.Next() {
		var p casekeys.Principal
		if err := rows.Scan(&p.ID, &p.Kind, &p.Name, &p.PublicKeyPEM, &p.EnrolledAt); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, p)
	}
	return out, storeErr(rows.Err())
}

func (s *Store) GetCase(ctx context.Context, id string) (*casekeys.Case, error) {
	var c casekeys.Case
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, created_by, encrypted_blob_url, key_envelopes FROM cases WHERE id = $1`,
		id).Scan(&c.ID, &c.CreatedAt, &c.CreatedBy, &c.EncryptedBlobURL, &c.KeyEnvelopes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, casekeys.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &c, nil
}

func (s *Store) PutCase(ctx context.Context, c casekeys.Case) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cases (id, created_at, created_by, encrypted_blob_url, key_envelopes)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id)
		 DO UPDATE SET created_at = $2, created_by = $3, encrypted_blob_url = $4, key_envelopes = $5`,
		c.ID, c.CreatedAt, c.CreatedBy, c.EncryptedBlobURL, c.KeyEnvelopes)
	return storeErr(err)
}

func (s *Store) CaseExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cases WHERE id = $1)`, id).Scan(&exists)
	return exists, storeErr(err)
}

func (s *Store) CasePage(ctx context.Context, afterID string, limit int) ([]casekeys.Case, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, created_by, encrypted_blob_url, key_envelopes
		 FROM cases WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []casekeys.Case
	for rows.Next() {
		var c casekeys.Case
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.CreatedBy, &c.EncryptedBlobURL, &c.KeyEnvelopes); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, c)
	}
	return out, storeErr(rows.Err())
}

const mergeEnvelopeSQL = `
	UPDATE cases
	SET key_envelopes = jsonb_set(key_envelopes, ARRAY[$2], to_jsonb($3::text), true)
	WHERE id = $1`

func (s *Store) UpdateEnvelope(ctx context.Context, caseID, principalID, envelope string) error {
	tag, err := s.pool.Exec(ctx, mergeEnvelopeSQL, caseID, principalID, envelope)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("case %s: %w", caseID, casekeys.ErrNotFound)
	}
	return nil
}

func (s *Store) BatchUpdateEnvelopes(ctx context.Context, updates []casekeys.EnvelopeUpdate) error {
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(mergeEnvelopeSQL, u.CaseID, u.PrincipalID, u.Envelope)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range updates {
		if _, err := results.Exec(); err != nil {
			return storeErr(err)
		}
	}
	return nil
}
