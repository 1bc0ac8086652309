package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// AESKeySize is the size in bytes of every data key in the system (AES-256).
	AESKeySize = 32
	// IVSize is the size in bytes of the CBC initialisation vector.
	IVSize = aes.BlockSize
)

// EncryptAESCBC encrypts plainText with AES-256-CBC and PKCS#7 padding.
// The returned slice is iv || ciphertext with a random 16-byte IV.
func EncryptAESCBC(plainText, rawKey []byte) ([]byte, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}

	padded := padPKCS7(plainText, aes.BlockSize)
	cipherText := make([]byte, len(iv)+len(padded))
	copy(cipherText, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(cipherText[len(iv):], padded)

	return cipherText, nil
}

// DecryptAESCBC decrypts an iv || ciphertext blob produced by EncryptAESCBC.
// A wrong key manifests as a padding failure.
func DecryptAESCBC(cipherText, rawKey []byte) ([]byte, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	if len(cipherText) < IVSize {
		return nil, fmt.Errorf("ciphertext shorter than IV size")
	}

	iv, body := cipherText[:IVSize], cipherText[IVSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of the block size")
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	plainText := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainText, body)

	return unpadPKCS7(plainText, aes.BlockSize)
}

// NewAESKey generates a random 256-bit data key.
func NewAESKey() ([]byte, error) {
	rawKey := make([]byte, AESKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating AES key: %w", err)
	}
	return rawKey, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
