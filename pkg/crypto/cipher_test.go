package crypto_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnwarden/api/pkg/crypto"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	require.NoError(t, err)

	plaintext := `{"username":"svc","password":"s3cret"}`
	encrypted, err := c.EncryptString(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, encrypted)

	decrypted, err := c.DecryptString(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestCipher_NonceUniqueness(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	require.NoError(t, err)

	a, err := c.EncryptString("same input")
	require.NoError(t, err)
	b, err := c.EncryptString("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCipher_InvalidKey(t *testing.T) {
	_, err := crypto.NewCipher([]byte("too short"))
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
}

func TestCipher_TamperedCiphertext(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	require.NoError(t, err)

	encrypted, err := c.EncryptString("payload")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = c.DecryptString(tampered)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestCipher_MalformedCiphertext(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	require.NoError(t, err)

	_, err = c.DecryptString("not base64!!!")
	assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)

	_, err = c.DecryptString(base64.StdEncoding.EncodeToString([]byte("tiny")))
	assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

func TestNewCipherFromBase64(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString(testKey())
	c, err := crypto.NewCipherFromBase64(b64)
	require.NoError(t, err)

	encrypted, err := c.EncryptString("hello")
	require.NoError(t, err)
	decrypted, err := c.DecryptString(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "hello", decrypted)

	_, err = crypto.NewCipherFromBase64("%%%")
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
}

func TestNoOpEncryptor(t *testing.T) {
	enc := crypto.NewNoOpEncryptor()

	out, err := enc.EncryptString("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = enc.DecryptString("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}
