// Package casekeys implements envelope-encryption key management for case
// records: the principal key registry, the system key vault, case id
// allocation, the per-case key fan-out at creation time, and the bulk
// backfill that grants a newly enrolled principal access to historical cases.
//
// Every case payload is encrypted once with a per-case AES-256 data key; that
// key is wrapped individually for each principal entitled to read the case.
// The plaintext data key and the unwrapped system private key only ever exist
// transiently in process memory.
package casekeys

import "time"

// PrincipalKind distinguishes the three provisioning models that share the
// same wrap/unwrap contract.
type PrincipalKind string

const (
	// KindClinician is an individually enrolled clinician with their own key pair.
	KindClinician PrincipalKind = "clinician"
	// KindShared is the role key shared by coordinators and admins.
	KindShared PrincipalKind = "shared"
	// KindSystem is the root key pair held by the service itself.
	KindSystem PrincipalKind = "system"
)

// Fixed ids of the two group principals. Every case's envelope map must carry
// an entry for SystemPrincipalID; without it the case cannot be backfilled.
const (
	SystemPrincipalID = "system-root"
	SharedPrincipalID = "shared-key"
)

// Principal is an entity entitled to read case data.
type Principal struct {
	ID           string        `json:"id"`
	Kind         PrincipalKind `json:"kind"`
	Name         string        `json:"name,omitempty"`
	PublicKeyPEM string        `json:"public_key_pem"`
	EnrolledAt   time.Time     `json:"enrolled_at"`
}

// KeyEnvelopeMap maps principal id to the base64 wrapped data key for one
// case. Entries are added, never removed; updates are always per-principal
// field merges, never whole-map replacement, so concurrent creation and
// backfill cannot lose each other's writes.
type KeyEnvelopeMap map[string]string

// Clone returns an independent copy of the map.
func (m KeyEnvelopeMap) Clone() KeyEnvelopeMap {
	out := make(KeyEnvelopeMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Case is the stored record for one clinical case. Only the fields touched by
// key management are modeled here; the encrypted payload lives behind
// EncryptedBlobURL and is never read by this subsystem.
type Case struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	CreatedBy        string         `json:"created_by,omitempty"`
	EncryptedBlobURL string         `json:"encrypted_blob_url,omitempty"`
	KeyEnvelopes     KeyEnvelopeMap `json:"key_envelopes"`
}

// SystemKeyPair is the persisted form of the root key pair. The private half
// is stored exclusively in passphrase-wrapped form (base64 of iv || ct).
type SystemKeyPair struct {
	PublicKeyPEM        string `json:"public_key_pem" yaml:"public_key_pem"`
	EncryptedPrivateKey string `json:"encrypted_private_key" yaml:"encrypted_private_key"`
}

// BackfillReport summarises one backfill run. FailedCaseIDs lists cases whose
// system envelope was missing or corrupt, or whose chunk commit failed;
// re-running the backfill for the same principal is safe and will retry them.
type BackfillReport struct {
	PrincipalID   string    `json:"principal_id"`
	Updated       int       `json:"updated_count"`
	FailedCaseIDs []string  `json:"failed_case_ids"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitzero"`
}
