package casekeys

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/casevault/casevault/crypto"
	"github.com/casevault/casevault/internal/util"
)

// Chunking defaults. Commit chunks stay bounded to respect the store's write
// batch limit; pages bound memory while streaming the case collection.
const (
	DefaultChunkSize = 400
	DefaultPageSize  = 200
)

// Backfiller retroactively grants a newly enrolled principal access to every
// pre-existing case. The run is O(cases) in store reads and asymmetric crypto
// (one unwrap plus one wrap per case), so it belongs on a background
// goroutine, never a synchronous request path.
type Backfiller struct {
	store    Store
	registry *Registry
	vault    *SystemKeyVault
	log      *slog.Logger

	chunkSize int
	pageSize  int
}

// BackfillOption configures a Backfiller.
type BackfillOption func(*Backfiller)

// WithBackfillLogger sets the structured logger. Defaults to slog.Default.
func WithBackfillLogger(log *slog.Logger) BackfillOption {
	return func(b *Backfiller) {
		b.log = log
	}
}

// WithChunkSize bounds the number of staged updates per batch commit.
func WithChunkSize(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.chunkSize = n
		}
	}
}

// WithPageSize bounds the number of cases fetched per store page.
func WithPageSize(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.pageSize = n
		}
	}
}

// NewBackfiller creates a backfiller over the store, registry and vault.
func NewBackfiller(store Store, registry *Registry, vault *SystemKeyVault, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		store:     store,
		registry:  registry,
		vault:     vault,
		chunkSize: DefaultChunkSize,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b
}

// Backfill registers the principal in the registry, then streams every case
// and stages a wrap of its data key for the new principal, committing in
// bounded chunks.
//
// The system private key is unwrapped exactly once for the whole run — the
// single most expensive and most sensitive step — and discarded when the run
// ends on any path. Per-case failures (missing or corrupt system envelope)
// are recorded in the report, not raised: partial success over a large,
// imperfect dataset is the expected steady state. A failed chunk commit
// records that chunk's ids and abandons the remaining chunks for this run;
// re-running is idempotent because cases that already carry the principal's
// entry are skipped.
func (b *Backfiller) Backfill(ctx context.Context, principalID string, pub *rsa.PublicKey, passphrase string) (*BackfillReport, error) {
	if principalID == "" || pub == nil {
		return nil, fmt.Errorf("principal id and public key are required")
	}

	b.registry.Add(principalID, pub)

	report := &BackfillReport{
		PrincipalID: principalID,
		StartedAt:   time.Now().UTC(),
	}

	err := b.vault.WithPrivateKey(passphrase, func(priv *rsa.PrivateKey) error {
		return b.run(ctx, priv, principalID, pub, report)
	})
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		return report, err
	}

	b.log.Info("backfill finished",
		"principal_id", principalID,
		"updated", report.Updated,
		"failed", len(report.FailedCaseIDs))
	return report, nil
}

func (b *Backfiller) run(ctx context.Context, priv *rsa.PrivateKey, principalID string, pub *rsa.PublicKey, report *BackfillReport) error {
	var staged []EnvelopeUpdate

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := b.store.CasePage(ctx, afterID, b.pageSize)
		if err != nil {
			return fmt.Errorf("streaming cases after %q: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		for _, c := range page {
			update, err := b.rewrapCase(priv, c, principalID, pub)
			if err != nil {
				b.log.Warn("skipping case in backfill", "case_id", c.ID, "error", err)
				report.FailedCaseIDs = append(report.FailedCaseIDs, c.ID)
				continue
			}
			if update == nil {
				continue // already has an entry for this principal
			}

			staged = append(staged, *update)
			if len(staged) >= b.chunkSize {
				if err := b.commitChunk(ctx, staged, report); err != nil {
					return err
				}
				staged = staged[:0]
			}
		}
	}

	if len(staged) > 0 {
		return b.commitChunk(ctx, staged, report)
	}
	return nil
}

// rewrapCase produces the staged update for one case, or nil if the case
// already carries an envelope for the principal. A missing or corrupt
// system-root envelope is an error: without it there is no valid key to
// re-wrap.
func (b *Backfiller) rewrapCase(priv *rsa.PrivateKey, c Case, principalID string, pub *rsa.PublicKey) (*EnvelopeUpdate, error) {
	if _, ok := c.KeyEnvelopes[principalID]; ok {
		return nil, nil
	}

	sysEnvelope, ok := c.KeyEnvelopes[SystemPrincipalID]
	if !ok {
		return nil, fmt.Errorf("%w: no system envelope", ErrDecryption)
	}
	wrapped, err := util.B64Decode(sysEnvelope)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding system envelope: %v", ErrDecryption, err)
	}

	dataKey, err := crypto.UnwrapKey(wrapped, priv)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(dataKey)

	ct, err := crypto.WrapKey(dataKey, pub)
	if err != nil {
		return nil, fmt.Errorf("wrapping for principal %s: %w", principalID, err)
	}

	return &EnvelopeUpdate{
		CaseID:      c.ID,
		PrincipalID: principalID,
		Envelope:    util.B64Encode(ct),
	}, nil
}

// commitChunk commits one bounded batch. On failure the chunk's case ids are
// recorded as failed and the error stops the run; already-committed chunks
// stay committed and a re-run will pick up where this one left off.
func (b *Backfiller) commitChunk(ctx context.Context, chunk []EnvelopeUpdate, report *BackfillReport) error {
	if err := b.store.BatchUpdateEnvelopes(ctx, chunk); err != nil {
		for _, u := range chunk {
			report.FailedCaseIDs = append(report.FailedCaseIDs, u.CaseID)
		}
		return fmt.Errorf("committing chunk of %d updates: %w", len(chunk), err)
	}
	report.Updated += len(chunk)
	return nil
}
