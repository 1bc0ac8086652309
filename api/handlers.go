package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/casevault/casevault/casekeys"
	"github.com/casevault/casevault/crypto"
	"github.com/casevault/casevault/internal/util"
)

func (a *API) handleEnrollPrincipal(w http.ResponseWriter, r *http.Request) {
	var req EnrollPrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pub, err := crypto.ParsePublicKeyPEM([]byte(req.PublicKeyPEM))
	if err != nil {
		a.audit.log(AuditEnrollRejected, r, slog.String("reason", "malformed public key"))
		writeError(w, http.StatusBadRequest, "malformed public key: "+err.Error())
		return
	}

	p := casekeys.Principal{
		ID:           uuid.NewString(),
		Kind:         casekeys.KindClinician,
		Name:         util.Normalize(req.Name),
		PublicKeyPEM: req.PublicKeyPEM,
		EnrolledAt:   time.Now().UTC(),
	}
	if err := a.store.PutPrincipal(r.Context(), p); err != nil {
		mapError(w, err)
		return
	}

	// The principal is usable for new cases right away; historical access
	// arrives asynchronously. The backfill must outlive this request.
	a.registry.Add(p.ID, pub)
	a.runner.Start(context.WithoutCancel(r.Context()), p.ID, pub)

	a.audit.log(AuditPrincipalEnrolled, r, slog.String("principal_id", p.ID))
	a.audit.log(AuditBackfillStarted, r, slog.String("principal_id", p.ID))

	writeJSON(w, http.StatusAccepted, EnrollPrincipalResponse{
		ID:         p.ID,
		Kind:       string(p.Kind),
		Name:       p.Name,
		EnrolledAt: p.EnrolledAt,
		Backfill:   string(casekeys.BackfillRunning),
	})
}

func (a *API) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	principals, err := a.store.ListActivePrincipals(r.Context(), "")
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]PrincipalSummary, 0, len(principals))
	for _, p := range principals {
		out = append(out, PrincipalSummary{
			ID:         p.ID,
			Kind:       string(p.Kind),
			Name:       p.Name,
			EnrolledAt: p.EnrolledAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := a.runner.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no backfill recorded for principal "+id)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SystemEnvelope == "" {
		writeError(w, http.StatusBadRequest, "system_envelope is required")
		return
	}

	id, err := a.allocator.Allocate(r.Context(), req.PreferredID, casekeys.DefaultMaxTrials, casekeys.DefaultIDLength)
	if err != nil {
		a.audit.log(AuditCaseRejected, r, slog.String("reason", "allocation"))
		mapError(w, err)
		return
	}

	envelopes, err := a.fanout.FanOut(r.Context(), req.SystemEnvelope, a.passphrase)
	if err != nil {
		a.allocator.Release(id)
		a.audit.log(AuditCaseRejected, r, slog.String("case_id", id), slog.String("reason", "fan-out"))
		mapError(w, err)
		return
	}

	c := casekeys.Case{
		ID:               id,
		CreatedAt:        time.Now().UTC(),
		CreatedBy:        req.CreatedBy,
		EncryptedBlobURL: req.EncryptedBlobURL,
		KeyEnvelopes:     envelopes,
	}
	if err := a.store.PutCase(r.Context(), c); err != nil {
		a.allocator.Release(id)
		mapError(w, err)
		return
	}
	a.allocator.Commit(id)

	a.audit.log(AuditCaseCreated, r,
		slog.String("case_id", id),
		slog.Int("envelopes", len(envelopes)))

	writeJSON(w, http.StatusCreated, caseResponse(c))
}

func (a *API) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := a.store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caseResponse(*c))
}

func caseResponse(c casekeys.Case) CaseResponse {
	return CaseResponse{
		ID:               c.ID,
		CreatedAt:        c.CreatedAt,
		CreatedBy:        c.CreatedBy,
		EncryptedBlobURL: c.EncryptedBlobURL,
		KeyEnvelopes:     c.KeyEnvelopes,
	}
}
