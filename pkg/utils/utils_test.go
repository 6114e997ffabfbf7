package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("ig-access-token"), testKey)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "ig-access-token")

	plain, err := Decrypt(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "ig-access-token", plain)
}

func TestDecryptErrors(t *testing.T) {
	_, err := Decrypt("not base64!", testKey)
	assert.Error(t, err)

	_, err = Decrypt("AAAA", testKey)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	sealed, err := Encrypt([]byte("token"), testKey)
	require.NoError(t, err)
	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	token, err := GenerateToken("secret", "17", 4, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "17", claims.UserID)
	assert.Equal(t, int64(4), claims.WorkspaceID)

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", "17", 4, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken("secret", expired)
	assert.Error(t, err)
}
