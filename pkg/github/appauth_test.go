package github

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func generateKeyPEM(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return pem.EncodeToMemory(block), key
}

func TestSignAssertionClaims(t *testing.T) {
	keyPEM, key := generateKeyPEM(t)

	signer, err := NewAppSigner("12345", keyPEM)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }

	assertion, err := signer.SignAssertion()
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(assertion, &claims, func(token *jwt.Token) (interface{}, error) {
		require.Equal(t, jwt.SigningMethodRS256.Alg(), token.Method.Alg())
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	require.Equal(t, "12345", claims.Issuer)
	require.Equal(t, now.Add(-30*time.Second).Unix(), claims.IssuedAt.Unix())
	require.Equal(t, now.Add(10*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestNewAppSignerRejectsBadKey(t *testing.T) {
	_, err := NewAppSigner("12345", []byte("not a pem key"))
	require.ErrorIs(t, err, ErrSignerUnavailable)
}

func TestNewAppSignerRequiresAppID(t *testing.T) {
	keyPEM, _ := generateKeyPEM(t)

	_, err := NewAppSigner("", keyPEM)
	require.ErrorIs(t, err, ErrSignerUnavailable)
}
