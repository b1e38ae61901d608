package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncryptionKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewTOTPManager_KeyLength(t *testing.T) {
	_, err := NewTOTPManager([]byte("too-short"), "Pyrodactyl")
	assert.Error(t, err)

	tm, err := NewTOTPManager(testEncryptionKey(), "Pyrodactyl")
	require.NoError(t, err)
	assert.NotNil(t, tm)
}

func TestTOTPManager_EncryptDecryptRoundTrip(t *testing.T) {
	tm, err := NewTOTPManager(testEncryptionKey(), "Pyrodactyl")
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	ciphertext, nonce, err := tm.EncryptSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, ciphertext)
	assert.Len(t, nonce, 12)

	plaintext, err := tm.DecryptSecret(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, plaintext)
}

func TestTOTPManager_DecryptWrongNonce(t *testing.T) {
	tm, err := NewTOTPManager(testEncryptionKey(), "Pyrodactyl")
	require.NoError(t, err)

	ciphertext, _, err := tm.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	_, err = tm.DecryptSecret(ciphertext, make([]byte, 12))
	assert.Error(t, err)
}

func TestTOTPManager_GenerateSecretWithQR(t *testing.T) {
	tm, err := NewTOTPManager(testEncryptionKey(), "Pyrodactyl")
	require.NoError(t, err)

	encrypted, nonce, secret, qr, err := tm.GenerateSecretWithQR("alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, encrypted)
	assert.Len(t, nonce, 12)
	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))

	// The stored ciphertext must decrypt back to the shown secret
	plaintext, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, string(plaintext))
}

func TestTOTPManager_ValidateCode(t *testing.T) {
	tm, err := NewTOTPManager(testEncryptionKey(), "Pyrodactyl")
	require.NoError(t, err)

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Pyrodactyl",
		AccountName: "alice@example.com",
		SecretSize:  32,
		Algorithm:   otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	valid, err := tm.ValidateCode([]byte(key.Secret()), code, nil)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = tm.ValidateCode([]byte(key.Secret()), "000000", nil)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_ValidateCode_ReplayRejected(t *testing.T) {
	tm, err := NewTOTPManager(testEncryptionKey(), "Pyrodactyl")
	require.NoError(t, err)

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Pyrodactyl",
		AccountName: "alice@example.com",
		SecretSize:  32,
		Algorithm:   otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	justUsed := time.Now().Add(-10 * time.Second)
	valid, err := tm.ValidateCode([]byte(key.Secret()), code, &justUsed)
	require.NoError(t, err)
	assert.False(t, valid)

	longAgo := time.Now().Add(-5 * time.Minute)
	valid, err = tm.ValidateCode([]byte(key.Secret()), code, &longAgo)
	require.NoError(t, err)
	assert.True(t, valid)
}
