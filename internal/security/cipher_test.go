package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	plaintext := "gho_candidate_token_value"
	encrypted, err := cipher.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, encrypted)

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	cipher, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	first, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	cipher, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	cases := map[string]string{
		"not base64":  "%%%not-base64%%%",
		"too short":   "YWJj",
		"empty":       "",
		"wrong bytes": "aW52YWxpZGNpcGhlcnRleHRpbnZhbGlkY2lwaGVydGV4dA==",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := cipher.Decrypt(input)
			require.ErrorIs(t, err, ErrMalformedCiphertext)
		})
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	cipher, err := NewTokenCipher(testKey)
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = cipher.Decrypt(tampered)
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestNewTokenCipherRejectsBadKeys(t *testing.T) {
	_, err := NewTokenCipher("zzzz")
	require.Error(t, err)

	_, err = NewTokenCipher("abcdef")
	require.Error(t, err)
}
