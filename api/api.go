// Package api exposes the key-management operations over HTTP: principal
// enrollment (which triggers a background backfill), case creation (which
// performs the key fan-out), and operator-visible backfill status.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/casevault/casevault/casekeys"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	store      casekeys.Store
	registry   *casekeys.Registry
	allocator  *casekeys.IDAllocator
	fanout     *casekeys.Fanout
	runner     *casekeys.BackfillRunner
	passphrase string
	audit      *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// New creates a new API instance. The passphrase is the deployment secret
// that unwraps the system private key for fan-out and backfill.
func New(store casekeys.Store, registry *casekeys.Registry, fanout *casekeys.Fanout, runner *casekeys.BackfillRunner, passphrase string, opts ...Option) *API {
	a := &API{
		store:      store,
		registry:   registry,
		allocator:  casekeys.NewIDAllocator(store),
		fanout:     fanout,
		runner:     runner,
		passphrase: passphrase,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Route("/principals", func(r chi.Router) {
		r.Post("/", a.handleEnrollPrincipal)
		r.Get("/", a.handleListPrincipals)
		r.Get("/{id}/backfill", a.handleBackfillStatus)
	})

	r.Route("/cases", func(r chi.Router) {
		r.Post("/", a.handleCreateCase)
		r.Get("/{id}", a.handleGetCase)
	})

	return r
}
