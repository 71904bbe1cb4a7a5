// Package cryptor implements the AES-128-CBC/PKCS7/Base64 codec the
// upstream control server expects on every JSON-RPC params field.
package cryptor

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/linspirer/proxy/internal/assert"
)

const blockSize = aes.BlockSize // 16

// Cryptor holds a fixed key and IV, reused for the lifetime of the process.
// The upstream protocol has no per-message nonce, so this is not an
// authenticated scheme — it exists to match the wire format, not to provide
// confidentiality guarantees of its own.
type Cryptor struct {
	key []byte
	iv  []byte
}

// New builds a Cryptor from a 16-byte key and 16-byte IV.
func New(key, iv []byte) (*Cryptor, error) {
	if err := assert.Check(len(key) == blockSize, "key must be %d bytes, got %d", blockSize, len(key)); err != nil {
		return nil, err
	}
	if err := assert.Check(len(iv) == blockSize, "iv must be %d bytes, got %d", blockSize, len(iv)); err != nil {
		return nil, err
	}
	return &Cryptor{key: key, iv: iv}, nil
}

// Encrypt pads plaintext with PKCS7, encrypts with AES-128-CBC, and returns
// the base64-encoded ciphertext.
func (c *Cryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("cryptor: new cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), blockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, c.iv)
	mode.CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt base64-decodes ciphertext, decrypts with AES-128-CBC, and strips
// the PKCS7 padding. Any malformed input surfaces as a single wrapped error,
// matching the original's blanket try/except around the whole operation.
func (c *Cryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("cryptor: decrypt: %w", err)
	}
	if len(raw) == 0 || len(raw)%blockSize != 0 {
		return "", fmt.Errorf("cryptor: decrypt: ciphertext is not a multiple of the block size")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("cryptor: decrypt: %w", err)
	}

	plaintext := make([]byte, len(raw))
	mode := cipher.NewCBCDecrypter(block, c.iv)
	mode.CryptBlocks(plaintext, raw)

	unpadded, err := pkcs7Unpad(plaintext, blockSize)
	if err != nil {
		return "", fmt.Errorf("cryptor: decrypt: %w", err)
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("invalid padded length: %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > size || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
