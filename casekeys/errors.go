package casekeys

import (
	"errors"

	"github.com/casevault/casevault/crypto"
)

var (
	// ErrInvalidPassphrase indicates the deployment passphrase does not
	// unwrap the system private key. Configuration-level and fatal for the
	// caller; never retried.
	ErrInvalidPassphrase = crypto.ErrInvalidPassphrase
	// ErrDecryption indicates a specific case's envelope could not be
	// unwrapped. It aborts a fan-out outright but is a per-case skip during
	// backfill.
	ErrDecryption = crypto.ErrDecryption
	// ErrAllocationExhausted indicates the id collision retry budget ran out.
	ErrAllocationExhausted = errors.New("case id allocation exhausted")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable indicates a transient store failure. This layer
	// does not retry; the caller owns the retry decision.
	ErrStoreUnavailable = errors.New("store unavailable")
)
