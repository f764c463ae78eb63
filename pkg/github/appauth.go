package github

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSignerUnavailable indicates the app private key is unusable. No app-level
// call can proceed, so health checks treat this differently from a transient
// host error.
var ErrSignerUnavailable = errors.New("app token signer unavailable")

// assertionTTL is the host's hard maximum lifetime for an app assertion.
const assertionTTL = 10 * time.Minute

// AppSigner builds short-lived RS256 assertions identifying the platform
// application. The private key is loaded once at startup.
type AppSigner struct {
	appID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewAppSigner parses the PEM-encoded RSA private key and returns a signer.
func NewAppSigner(appID string, privateKeyPEM []byte) (*AppSigner, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: app id must be provided", ErrSignerUnavailable)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignerUnavailable, err)
	}

	return &AppSigner{appID: appID, key: key, now: time.Now}, nil
}

// SignAssertion issues a signed assertion with issuer = app id, issued-at
// backdated 30 seconds against clock skew, and the maximum 10 minute expiry.
func (s *AppSigner) SignAssertion() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignerUnavailable, err)
	}

	return signed, nil
}
