package api

import "time"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EnrollPrincipalRequest enrolls a clinician. The public key is PEM text; the
// matching private key never leaves the client.
type EnrollPrincipalRequest struct {
	Name         string `json:"name"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// EnrollPrincipalResponse acknowledges enrollment. The principal can read
// newly created cases immediately; access to historical cases arrives as the
// background backfill progresses.
type EnrollPrincipalResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Backfill   string    `json:"backfill"`
}

// PrincipalSummary is the list view of a principal. The public key is
// deliberately omitted from listings.
type PrincipalSummary struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name,omitempty"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// CreateCaseRequest creates a case record. SystemEnvelope is the case's data
// key already wrapped for the system-root principal by the client.
type CreateCaseRequest struct {
	PreferredID      string `json:"preferred_id,omitempty"`
	CreatedBy        string `json:"created_by,omitempty"`
	EncryptedBlobURL string `json:"encrypted_blob_url,omitempty"`
	SystemEnvelope   string `json:"system_envelope"`
}

// CaseResponse is the stored case record including its envelope map.
type CaseResponse struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"created_at"`
	CreatedBy        string            `json:"created_by,omitempty"`
	EncryptedBlobURL string            `json:"encrypted_blob_url,omitempty"`
	KeyEnvelopes     map[string]string `json:"key_envelopes"`
}
