package crypto

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/casevault/casevault/internal/util"
)

func TestWrapUnwrapKey_RoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	dataKey, err := util.NewAESKey()
	if err != nil {
		t.Fatalf("NewAESKey failed: %v", err)
	}

	ct, err := WrapKey(dataKey, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	got, err := UnwrapKey(ct, priv)
	if err != nil {
		t.Fatalf("UnwrapKey failed: %v", err)
	}
	if !bytes.Equal(got, dataKey) {
		t.Error("data key round trip mismatch")
	}
}

func TestWrapKey_Randomized(t *testing.T) {
	priv, _ := GenerateKeyPair()
	dataKey, _ := util.NewAESKey()

	a, err := WrapKey(dataKey, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	b, err := WrapKey(dataKey, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("OAEP ciphertexts must not repeat for the same inputs")
	}
}

func TestUnwrapKey_WrongKeyPair(t *testing.T) {
	priv, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()
	dataKey, _ := util.NewAESKey()

	ct, err := WrapKey(dataKey, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	_, err = UnwrapKey(ct, other)
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("expected ErrDecryption, got %v", err)
	}
}

func TestWrapUnwrapPrivateKey_RoundTrip(t *testing.T) {
	priv, _ := GenerateKeyPair()
	pemStr := string(EncodePrivateKeyPEM(priv))

	blob, err := WrapPrivateKey(pemStr, "correct horse battery staple")
	if err != nil {
		t.Fatalf("WrapPrivateKey failed: %v", err)
	}
	got, err := UnwrapPrivateKey(blob, "correct horse battery staple")
	if err != nil {
		t.Fatalf("UnwrapPrivateKey failed: %v", err)
	}
	if string(got) != pemStr {
		t.Error("private key PEM round trip mismatch")
	}
}

func TestUnwrapPrivateKey_WrongPassphrase(t *testing.T) {
	priv, _ := GenerateKeyPair()
	blob, err := WrapPrivateKey(string(EncodePrivateKeyPEM(priv)), "right")
	if err != nil {
		t.Fatalf("WrapPrivateKey failed: %v", err)
	}

	// A wrong passphrase must always surface as ErrInvalidPassphrase, never
	// as silently-wrong plaintext.
	for _, wrong := range []string{"wrong", "", "Right", "right "} {
		if _, err := UnwrapPrivateKey(blob, wrong); !errors.Is(err, ErrInvalidPassphrase) {
			t.Errorf("passphrase %q: expected ErrInvalidPassphrase, got %v", wrong, err)
		}
	}
}

func TestPEMRoundTrip(t *testing.T) {
	priv, _ := GenerateKeyPair()

	pubPEM, err := EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM failed: %v", err)
	}
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKeyPEM failed: %v", err)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 {
		t.Error("public key round trip mismatch")
	}

	parsed, err := ParsePrivateKeyPEM(EncodePrivateKeyPEM(priv))
	if err != nil {
		t.Fatalf("ParsePrivateKeyPEM failed: %v", err)
	}
	if parsed.D.Cmp(priv.D) != 0 {
		t.Error("private key round trip mismatch")
	}
}

func TestParsePublicKeyPEM_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Garbage", []byte("not a pem block")},
		{"WrongType", EncodePrivateKeyPEM(mustKeyPair(t))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePublicKeyPEM(tt.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func mustKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	return priv
}
