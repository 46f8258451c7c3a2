package secrets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := NewCipher(bytes.Repeat([]byte{0x2a}, 32))
	require.NoError(t, err)

	encoded, err := cipher.Encrypt([]byte("leaf seed material"))
	require.NoError(t, err)
	assert.NotContains(t, encoded, "leaf seed")

	plain, err := cipher.Decrypt(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("leaf seed material"), plain)
}

func TestCipherRejectsShortKey(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestCipherRejectsTruncatedPayload(t *testing.T) {
	cipher, err := NewCipher(bytes.Repeat([]byte{0x2a}, 32))
	require.NoError(t, err)

	_, err = cipher.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestUnconfiguredVaultRefusesOperations(t *testing.T) {
	vault := Unconfigured()

	_, err := vault.Encrypt([]byte("payload"))
	assert.ErrorIs(t, err, ErrNoEncryptionKey)

	_, err = vault.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrNoEncryptionKey)
}

func TestCipherRejectsTamperedPayload(t *testing.T) {
	cipher, err := NewCipher(bytes.Repeat([]byte{0x2a}, 32))
	require.NoError(t, err)

	other, err := NewCipher(bytes.Repeat([]byte{0x2b}, 32))
	require.NoError(t, err)

	encoded, err := cipher.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = other.Decrypt(encoded)
	assert.Error(t, err)
}
