package casekeys

import (
	"crypto/rsa"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/casevault/casevault/crypto"
)

// SystemKeyVault is the custodian of the root key pair. The public half is
// parsed once at construction; the private half stays passphrase-wrapped and
// is only materialised inside WithPrivateKey for the span of one operation.
type SystemKeyVault struct {
	pub                 *rsa.PublicKey
	encryptedPrivateKey string
}

// NewSystemKeyVault builds a vault from the persisted key pair. The wrapped
// private blob is kept opaque; a bad passphrase is only detectable at
// WithPrivateKey time.
func NewSystemKeyVault(pair SystemKeyPair) (*SystemKeyVault, error) {
	pub, err := crypto.ParsePublicKeyPEM([]byte(pair.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parsing system public key: %w", err)
	}
	if pair.EncryptedPrivateKey == "" {
		return nil, fmt.Errorf("missing encrypted system private key")
	}
	return &SystemKeyVault{
		pub:                 pub,
		encryptedPrivateKey: pair.EncryptedPrivateKey,
	}, nil
}

// PublicKey returns the system public key. Always available.
func (v *SystemKeyVault) PublicKey() *rsa.PublicKey {
	return v.pub
}

// WithPrivateKey unwraps the system private key and hands it to fn. The
// decrypted PEM lives in a locked buffer that is destroyed on every exit
// path, so no plaintext key material outlives the call. Returns
// ErrInvalidPassphrase if the passphrase does not unwrap the blob; callers
// treat that as a fatal configuration error, not something to retry.
func (v *SystemKeyVault) WithPrivateKey(passphrase string, fn func(priv *rsa.PrivateKey) error) error {
	pemBytes, err := crypto.UnwrapPrivateKey(v.encryptedPrivateKey, passphrase)
	if err != nil {
		return fmt.Errorf("unwrapping system private key: %w", err)
	}

	// NewBufferFromBytes wipes pemBytes and takes ownership of the copy.
	buf := memguard.NewBufferFromBytes(pemBytes)
	defer buf.Destroy()

	priv, err := crypto.ParsePrivateKeyPEM(buf.Bytes())
	if err != nil {
		return fmt.Errorf("parsing system private key: %w", err)
	}

	return fn(priv)
}
