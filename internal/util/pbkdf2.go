package util

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// MinKDFIterations is the floor for PBKDF2 iteration counts accepted anywhere
// in the system. Already-provisioned blobs were derived with exactly this count.
const MinKDFIterations = 100_000

// DeriveKey runs PBKDF2-SHA256 over the passphrase. Both the private-key wrap
// and the passphrase-based data flows share this derivation, so the hash
// family and iteration count must stay in lockstep with the other clients of
// the stored blobs.
func DeriveKey(passphrase string, salt []byte, length, iterations int) []byte {
	if iterations < MinKDFIterations {
		iterations = MinKDFIterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, length, sha256.New)
}
