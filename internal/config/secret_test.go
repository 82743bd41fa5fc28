package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	sealed, err := Encrypt("s3cret!", key)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))
	assert.NotContains(t, sealed, "s3cret!")

	plain, err := Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "s3cret!", plain)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()

	sealed, err := Encrypt("s3cret!", key)
	require.NoError(t, err)

	_, err = Decrypt(sealed, other)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_InvalidKey(t *testing.T) {
	_, err := Decrypt("enc:AAAA", "short")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoad_DecryptsPassword(t *testing.T) {
	clearPIEnv(t)
	key, _ := GenerateKey()
	sealed, err := Encrypt("hunter2", key)
	require.NoError(t, err)

	setEnv(t, "PIWEBAPI_PASSWORD", sealed)
	setEnv(t, "PIWEBAPI_ENCRYPTION_KEY", key)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.PI.Password)
}

func TestLoad_PlainPasswordUntouched(t *testing.T) {
	clearPIEnv(t)
	setEnv(t, "PIWEBAPI_PASSWORD", "plain")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.PI.Password)
}
