package casekeys_test

import (
	"context"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevault/casevault/casekeys"
	"github.com/casevault/casevault/internal/util"
)

func TestFanOut_CoversEveryActivePrincipal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	clinicianPriv := enrollClinician(t, env, "clinician-a")

	systemEnvelope, dataKey := newSystemEnvelope(t, env.vault.PublicKey())

	envelopes, err := env.fanout.FanOut(ctx, systemEnvelope, testPassphrase)
	require.NoError(t, err)

	// system + shared + clinician-a
	assert.Len(t, envelopes, 3)
	assert.Equal(t, systemEnvelope, envelopes[casekeys.SystemPrincipalID],
		"the original system entry must be preserved verbatim")
	assertCanUnwrap(t, envelopes, "clinician-a", clinicianPriv, dataKey)
}

func TestFanOut_WrongPassphraseAborts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	systemEnvelope, _ := newSystemEnvelope(t, env.vault.PublicKey())

	_, err := env.fanout.FanOut(ctx, systemEnvelope, "not-the-passphrase")
	require.ErrorIs(t, err, casekeys.ErrInvalidPassphrase)
}

func TestFanOut_CorruptEnvelopeAborts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	garbage, err := util.RandomBytes(256)
	require.NoError(t, err)

	_, err = env.fanout.FanOut(ctx, util.B64Encode(garbage), testPassphrase)
	require.ErrorIs(t, err, casekeys.ErrDecryption)

	_, err = env.fanout.FanOut(ctx, "not base64 at all!!!", testPassphrase)
	require.ErrorIs(t, err, casekeys.ErrDecryption)
}

func TestFanOut_SkipsPrincipalWithMalformedKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	clinicianPriv := enrollClinician(t, env, "clinician-a")

	// A registry entry with a tiny key makes the OAEP wrap fail for that
	// principal only; the rest of the fan-out must still go through.
	tiny := tinyRSAKey(t)
	env.registry.Add("clinician-broken", &tiny.PublicKey)

	systemEnvelope, dataKey := newSystemEnvelope(t, env.vault.PublicKey())

	envelopes, err := env.fanout.FanOut(ctx, systemEnvelope, testPassphrase)
	require.NoError(t, err)

	assert.NotContains(t, envelopes, "clinician-broken")
	assertCanUnwrap(t, envelopes, "clinician-a", clinicianPriv, dataKey)
}

func TestFanOut_SeesPrincipalAddedAfterRefresh(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// Add goes straight to the cache; no refresh in between.
	priv := enrollClinician(t, env, "clinician-new")

	systemEnvelope, dataKey := newSystemEnvelope(t, env.vault.PublicKey())
	envelopes, err := env.fanout.FanOut(ctx, systemEnvelope, testPassphrase)
	require.NoError(t, err)

	assertCanUnwrap(t, envelopes, "clinician-new", priv, dataKey)
}
