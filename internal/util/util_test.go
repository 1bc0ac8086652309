package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncryptDecryptAESCBC(t *testing.T) {
	key, err := NewAESKey()
	if err != nil {
		t.Fatalf("NewAESKey failed: %v", err)
	}

	for _, size := range []int{0, 1, 15, 16, 17, 1024} {
		plain := bytes.Repeat([]byte{0xAB}, size)
		ct, err := EncryptAESCBC(plain, key)
		if err != nil {
			t.Fatalf("EncryptAESCBC(%d bytes) failed: %v", size, err)
		}
		if len(ct)%16 != 0 {
			t.Errorf("ciphertext length %d not block aligned", len(ct))
		}
		got, err := DecryptAESCBC(ct, key)
		if err != nil {
			t.Fatalf("DecryptAESCBC failed: %v", err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("round trip mismatch for %d bytes", size)
		}
	}
}

func TestDecryptAESCBC_WrongKey(t *testing.T) {
	key, _ := NewAESKey()
	other, _ := NewAESKey()
	plain := []byte("hello")
	ct, err := EncryptAESCBC(plain, key)
	if err != nil {
		t.Fatalf("EncryptAESCBC failed: %v", err)
	}
	// A wrong key yields a padding error or, rarely, accidentally valid
	// padding over garbage. Either way the plaintext must not come back.
	if got, err := DecryptAESCBC(ct, other); err == nil && bytes.Equal(got, plain) {
		t.Error("wrong key produced the original plaintext")
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := []byte("fixed-salt")
	a := DeriveKey("passphrase", salt, 32, 100_000)
	b := DeriveKey("passphrase", salt, 32, 100_000)
	if !bytes.Equal(a, b) {
		t.Error("derivation not deterministic")
	}
	c := DeriveKey("other", salt, 32, 100_000)
	if bytes.Equal(a, c) {
		t.Error("different passphrases derived the same key")
	}
}

func TestDeriveKey_IterationFloor(t *testing.T) {
	salt := []byte("fixed-salt")
	low := DeriveKey("passphrase", salt, 32, 1)
	floor := DeriveKey("passphrase", salt, 32, MinKDFIterations)
	if !bytes.Equal(low, floor) {
		t.Error("iteration counts below the floor must be clamped to it")
	}
}

func TestRandomChars(t *testing.T) {
	s, err := RandomChars(64)
	if err != nil {
		t.Fatalf("RandomChars failed: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("expected 64 chars, got %d", len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune("23456789ABCDEFGHJKLMNPQRSTVWXYZ", r) {
			t.Errorf("character %q outside the unambiguous alphabet", r)
		}
	}
}

func TestB64RoundTrip(t *testing.T) {
	b, _ := RandomBytes(48)
	got, err := B64Decode(B64Encode(b))
	if err != nil {
		t.Fatalf("B64Decode failed: %v", err)
	}
	if !bytes.Equal(got, b) {
		t.Error("base64 round trip mismatch")
	}
}
