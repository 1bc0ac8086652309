package casekeys_test

import (
	"context"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevault/casevault/casekeys"
	"github.com/casevault/casevault/crypto"
)

func TestBackfillRunner_CompletesInBackground(t *testing.T) {
	env := newTestEnv(t)
	createCase(t, env, "CASE2345")

	backfiller := casekeys.NewBackfiller(env.store, env.registry, env.vault)
	runner := casekeys.NewBackfillRunner(backfiller, testPassphrase)

	privB, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	runner.Start(context.Background(), "clinician-b", &privB.PublicKey)
	runner.Wait()

	state, ok := runner.Status("clinician-b")
	require.True(t, ok)
	assert.Equal(t, casekeys.BackfillCompleted, state.Status)
	require.NotNil(t, state.Report)
	assert.Equal(t, 1, state.Report.Updated)
}

func TestBackfillRunner_ReportsFailure(t *testing.T) {
	env := newTestEnv(t)
	createCase(t, env, "CASE2345")

	backfiller := casekeys.NewBackfiller(env.store, env.registry, env.vault)
	runner := casekeys.NewBackfillRunner(backfiller, "wrong-passphrase")

	privB, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	runner.Start(context.Background(), "clinician-b", &privB.PublicKey)
	runner.Wait()

	state, ok := runner.Status("clinician-b")
	require.True(t, ok)
	assert.Equal(t, casekeys.BackfillFailed, state.Status)
}

func TestBackfillRunner_UnknownPrincipal(t *testing.T) {
	env := newTestEnv(t)
	backfiller := casekeys.NewBackfiller(env.store, env.registry, env.vault)
	runner := casekeys.NewBackfillRunner(backfiller, testPassphrase)

	_, ok := runner.Status("nobody")
	assert.False(t, ok)
}
