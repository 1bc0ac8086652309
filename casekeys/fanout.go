package casekeys

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"

	"github.com/casevault/casevault/crypto"
	"github.com/casevault/casevault/internal/util"
)

// Fanout builds the complete key envelope map for one newly created case.
// The client has already wrapped the case's data key for the system-root
// principal; Fanout extends that single entry to every currently active
// principal. It never writes to the store — the creation flow persists the
// returned map atomically with the rest of the case.
type Fanout struct {
	registry *Registry
	vault    *SystemKeyVault
	log      *slog.Logger
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithFanoutLogger sets the structured logger. Defaults to slog.Default.
func WithFanoutLogger(log *slog.Logger) FanoutOption {
	return func(f *Fanout) {
		f.log = log
	}
}

// NewFanout creates a fan-out service over the registry and vault.
func NewFanout(registry *Registry, vault *SystemKeyVault, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		registry: registry,
		vault:    vault,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

// FanOut unwraps the data key from the system envelope and wraps it for every
// principal in the current registry snapshot.
//
// Failure to unwrap the system envelope aborts the whole call: a case whose
// key nobody can read is worse than no case at all. Failure to wrap for one
// specific principal (malformed key) is logged and skipped — partial coverage
// is recoverable by a later backfill, total failure is not.
func (f *Fanout) FanOut(ctx context.Context, systemEnvelope, passphrase string) (KeyEnvelopeMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wrapped, err := util.B64Decode(systemEnvelope)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding system envelope: %v", ErrDecryption, err)
	}

	snapshot := f.registry.Snapshot()
	envelopes := KeyEnvelopeMap{SystemPrincipalID: systemEnvelope}

	err = f.vault.WithPrivateKey(passphrase, func(priv *rsa.PrivateKey) error {
		dataKey, err := crypto.UnwrapKey(wrapped, priv)
		if err != nil {
			return fmt.Errorf("unwrapping system envelope: %w", err)
		}
		defer util.WipeBytes(dataKey)

		for id, pub := range snapshot {
			if id == SystemPrincipalID {
				continue
			}
			ct, err := crypto.WrapKey(dataKey, pub)
			if err != nil {
				f.log.Warn("skipping principal in fan-out", "principal_id", id, "error", err)
				continue
			}
			envelopes[id] = util.B64Encode(ct)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return envelopes, nil
}
