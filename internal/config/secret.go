package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const encryptedPrefix = "enc:"

// Secret errors
var (
	ErrInvalidKey    = errors.New("encryption key must be 32 bytes, base64 encoded")
	ErrDecryptFailed = errors.New("failed to decrypt setting; check PIWEBAPI_ENCRYPTION_KEY")
)

// IsEncrypted reports whether value was produced by Encrypt.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix)
}

// GenerateKey returns a new base64 encoded secretbox key.
func GenerateKey() (string, error) {
	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Encrypt seals plain with key and returns an enc: prefixed value.
func Encrypt(plain, key string) (string, error) {
	k, err := parseKey(key)
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, k)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func Decrypt(value, key string) (string, error) {
	k, err := parseKey(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil || len(raw) < 24 {
		return "", ErrDecryptFailed
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, k)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}

func parseKey(key string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	var k [32]byte
	copy(k[:], raw)
	return &k, nil
}
