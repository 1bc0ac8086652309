package casekeys_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/casevault/casevault/casekeys"
	"github.com/casevault/casevault/crypto"
	"github.com/casevault/casevault/internal/util"
	"github.com/casevault/casevault/storage/memory"
)

const testPassphrase = "test-passphrase"

type testEnv struct {
	store    *memory.Store
	registry *casekeys.Registry
	vault    *casekeys.SystemKeyVault
	fanout   *casekeys.Fanout

	systemPriv *rsa.PrivateKey
}

// newTestEnv provisions a system key pair, the two fixed principals, and an
// empty in-memory store, mirroring what the server bootstrap does.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	systemPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	sharedPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	pair := wrapKeyPair(t, systemPriv, testPassphrase)
	vault, err := casekeys.NewSystemKeyVault(pair)
	require.NoError(t, err)

	store := memory.NewStore()
	putPrincipal(t, store, casekeys.SystemPrincipalID, casekeys.KindSystem, &systemPriv.PublicKey)
	putPrincipal(t, store, casekeys.SharedPrincipalID, casekeys.KindShared, &sharedPriv.PublicKey)

	registry := casekeys.NewRegistry(store)
	require.NoError(t, registry.Refresh(ctx))

	return &testEnv{
		store:      store,
		registry:   registry,
		vault:      vault,
		fanout:     casekeys.NewFanout(registry, vault),
		systemPriv: systemPriv,
	}
}

func wrapKeyPair(t *testing.T, priv *rsa.PrivateKey, passphrase string) casekeys.SystemKeyPair {
	t.Helper()
	pubPEM, err := crypto.EncodePublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)
	blob, err := crypto.WrapPrivateKey(string(crypto.EncodePrivateKeyPEM(priv)), passphrase)
	require.NoError(t, err)
	return casekeys.SystemKeyPair{
		PublicKeyPEM:        string(pubPEM),
		EncryptedPrivateKey: blob,
	}
}

func putPrincipal(t *testing.T, store *memory.Store, id string, kind casekeys.PrincipalKind, pub *rsa.PublicKey) {
	t.Helper()
	pubPEM, err := crypto.EncodePublicKeyPEM(pub)
	require.NoError(t, err)
	require.NoError(t, store.PutPrincipal(context.Background(), casekeys.Principal{
		ID:           id,
		Kind:         kind,
		PublicKeyPEM: string(pubPEM),
	}))
}

// newSystemEnvelope builds what the client supplies at case creation: a fresh
// data key wrapped for the system-root principal.
func newSystemEnvelope(t *testing.T, systemPub *rsa.PublicKey) (string, []byte) {
	t.Helper()
	dataKey, err := util.NewAESKey()
	require.NoError(t, err)
	ct, err := crypto.WrapKey(dataKey, systemPub)
	require.NoError(t, err)
	return util.B64Encode(ct), dataKey
}

func enrollClinician(t *testing.T, env *testEnv, id string) *rsa.PrivateKey {
	t.Helper()
	priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	putPrincipal(t, env.store, id, casekeys.KindClinician, &priv.PublicKey)
	env.registry.Add(id, &priv.PublicKey)
	return priv
}

// tinyRSAKey returns a key whose modulus is too small to OAEP-wrap a 32-byte
// data key, for exercising per-principal wrap failures.
func tinyRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 512)
	require.NoError(t, err)
	return priv
}

// assertCanUnwrap checks that the principal's envelope in the map opens to
// the expected data key under their private key.
func assertCanUnwrap(t *testing.T, envelopes casekeys.KeyEnvelopeMap, principalID string, priv *rsa.PrivateKey, wantKey []byte) {
	t.Helper()
	envelope, ok := envelopes[principalID]
	require.True(t, ok, "no envelope for %s", principalID)
	ct, err := util.B64Decode(envelope)
	require.NoError(t, err)
	got, err := crypto.UnwrapKey(ct, priv)
	require.NoError(t, err)
	require.Equal(t, wantKey, got)
}
