package casekeys

import "context"

// EnvelopeUpdate stages a single-field merge of one principal's wrapped key
// into one case's envelope map.
type EnvelopeUpdate struct {
	CaseID      string
	PrincipalID string
	Envelope    string
}

// Store is the document store consumed by this subsystem. Implementations
// live under storage/. Transient failures surface as ErrStoreUnavailable and
// are not retried here.
//
// UpdateEnvelope and BatchUpdateEnvelopes must merge exactly the addressed
// key_envelopes.<principal_id> field. Replacing the whole map would lose a
// concurrent writer's sibling entry.
type Store interface {
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	PutPrincipal(ctx context.Context, p Principal) error
	// ListActivePrincipals returns all active principals, optionally
	// filtered by kind (empty kind means all).
	ListActivePrincipals(ctx context.Context, kind PrincipalKind) ([]Principal, error)

	GetCase(ctx context.Context, id string) (*Case, error)
	PutCase(ctx context.Context, c Case) error
	CaseExists(ctx context.Context, id string) (bool, error)
	// CasePage streams cases in stable id order: it returns up to limit
	// cases with ids strictly greater than afterID. An empty result means
	// the stream is exhausted.
	CasePage(ctx context.Context, afterID string, limit int) ([]Case, error)

	UpdateEnvelope(ctx context.Context, caseID, principalID, envelope string) error
	// BatchUpdateEnvelopes commits the staged updates as one bounded write
	// batch. Callers chunk to the store's batch limit before calling.
	BatchUpdateEnvelopes(ctx context.Context, updates []EnvelopeUpdate) error
}
