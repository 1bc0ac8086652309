// Package crypto provides the cryptographic transforms for case data keys:
// asymmetric wrapping of data keys to principal public keys, and
// passphrase-based wrapping of the system private key. All functions are
// stateless; every blob crossing a boundary is base64 text.
package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/casevault/casevault/internal/util"
)

var (
	// ErrDecryption indicates a wrapped data key could not be unwrapped:
	// the ciphertext was not produced for this key pair, or is corrupt.
	ErrDecryption = errors.New("envelope decryption failed")
	// ErrInvalidPassphrase indicates the passphrase does not unwrap the
	// stored private key. It surfaces as a padding failure of the CBC layer.
	ErrInvalidPassphrase = errors.New("invalid passphrase")
)

// privateKeySalt is the fixed textual salt for the private-key KDF.
//
// A fixed salt weakens PBKDF2 against precomputation, but every provisioned
// encrypted private-key blob in the field was derived with exactly this value,
// so randomizing it would make those blobs undecryptable. Interoperability
// wins; do not change this constant.
const privateKeySalt = "casevault:system-key:v1"

// DefaultKDFIterations is the PBKDF2 iteration count used for new wraps.
const DefaultKDFIterations = util.MinKDFIterations

// WrapKey encrypts a data key under the recipient's public key using
// RSA-OAEP with SHA-256. The ciphertext is randomized; two wraps of the same
// key are never byte-equal.
func WrapKey(dataKey []byte, recipient *rsa.PublicKey) ([]byte, error) {
	if recipient == nil {
		return nil, fmt.Errorf("nil recipient public key")
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipient, dataKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping data key: %w", err)
	}
	return ct, nil
}

// UnwrapKey decrypts a wrapped data key with the recipient's private key.
func UnwrapKey(cipherText []byte, recipient *rsa.PrivateKey) ([]byte, error) {
	if recipient == nil {
		return nil, fmt.Errorf("nil recipient private key")
	}
	dataKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, recipient, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return dataKey, nil
}

// WrapPrivateKey encrypts a PEM-encoded private key under a passphrase.
// The key is derived with PBKDF2-SHA256 over the fixed salt, then the PEM is
// AES-256-CBC encrypted with a random IV. The result is base64(iv || ct).
func WrapPrivateKey(privateKeyPEM, passphrase string) (string, error) {
	derived := util.DeriveKey(passphrase, []byte(privateKeySalt), util.AESKeySize, DefaultKDFIterations)
	defer util.WipeBytes(derived)

	blob, err := util.EncryptAESCBC([]byte(privateKeyPEM), derived)
	if err != nil {
		return "", fmt.Errorf("wrapping private key: %w", err)
	}
	return util.B64Encode(blob), nil
}

// UnwrapPrivateKey reverses WrapPrivateKey. Callers must wipe the returned
// PEM from memory as soon as the key has been parsed.
func UnwrapPrivateKey(blob, passphrase string) ([]byte, error) {
	raw, err := util.B64Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding private key blob: %w", err)
	}

	derived := util.DeriveKey(passphrase, []byte(privateKeySalt), util.AESKeySize, DefaultKDFIterations)
	defer util.WipeBytes(derived)

	pemBytes, err := util.DecryptAESCBC(raw, derived)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassphrase, err)
	}
	// CBC padding alone does not authenticate; a wrong passphrase can slip
	// through the unpad with small probability. The plaintext must be PEM.
	if !bytes.HasPrefix(pemBytes, []byte("-----BEGIN")) {
		util.WipeBytes(pemBytes)
		return nil, fmt.Errorf("%w: decrypted payload is not a private key", ErrInvalidPassphrase)
	}
	return pemBytes, nil
}

// DeriveKey exposes the shared PBKDF2-SHA256 derivation for the passphrase
// flows outside the private-key wrap (export bundles and the like).
func DeriveKey(passphrase string, salt []byte, length, iterations int) []byte {
	return util.DeriveKey(passphrase, salt, length, iterations)
}
