package casekeys

import (
	"context"
	"crypto/rsa"
	"log/slog"
	"sync"
)

// BackfillStatus is the operator-visible state of a principal's backfill.
type BackfillStatus string

const (
	BackfillRunning   BackfillStatus = "running"
	BackfillCompleted BackfillStatus = "completed"
	BackfillFailed    BackfillStatus = "failed"
)

// BackfillState pairs a status with the latest report for one principal.
type BackfillState struct {
	Status BackfillStatus  `json:"status"`
	Report *BackfillReport `json:"report,omitempty"`
}

// BackfillRunner launches backfills as fire-and-forget background work and
// retains the last known state per principal. Enrollment acknowledges
// immediately — the principal can read newly created cases right away via the
// registry — while access to historical cases arrives as the run progresses.
type BackfillRunner struct {
	backfiller *Backfiller
	passphrase string
	log        *slog.Logger

	mu     sync.Mutex
	states map[string]*BackfillState
	wg     sync.WaitGroup
}

// NewBackfillRunner wraps a Backfiller with background execution and status
// tracking. The passphrase is deployment configuration captured once.
func NewBackfillRunner(backfiller *Backfiller, passphrase string) *BackfillRunner {
	return &BackfillRunner{
		backfiller: backfiller,
		passphrase: passphrase,
		log:        backfiller.log,
		states:     make(map[string]*BackfillState),
	}
}

// Start launches a backfill for the principal unless one is already running.
// It returns immediately; progress is observable via Status.
func (r *BackfillRunner) Start(ctx context.Context, principalID string, pub *rsa.PublicKey) {
	r.mu.Lock()
	if st, ok := r.states[principalID]; ok && st.Status == BackfillRunning {
		r.mu.Unlock()
		return
	}
	r.states[principalID] = &BackfillState{Status: BackfillRunning}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		report, err := r.backfiller.Backfill(ctx, principalID, pub, r.passphrase)

		status := BackfillCompleted
		if err != nil {
			status = BackfillFailed
			r.log.Error("backfill failed", "principal_id", principalID, "error", err)
		}

		r.mu.Lock()
		r.states[principalID] = &BackfillState{Status: status, Report: report}
		r.mu.Unlock()
	}()
}

// Status returns the last known state for the principal, or false if no
// backfill has ever been started for it.
func (r *BackfillRunner) Status(principalID string) (BackfillState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[principalID]
	if !ok {
		return BackfillState{}, false
	}
	return *st, true
}

// Wait blocks until all in-flight backfills finish. Used by tests and
// graceful shutdown.
func (r *BackfillRunner) Wait() {
	r.wg.Wait()
}
