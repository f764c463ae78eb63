package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/repository"
	"github.com/talentforge/talentforge-api/internal/security"
	"github.com/talentforge/talentforge-api/pkg/github"
)

const testCipherKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeSigner struct {
	assertion string
	err       error
}

func (f fakeSigner) SignAssertion() (string, error) {
	return f.assertion, f.err
}

type fakeMinter struct {
	token     github.InstallationToken
	err       error
	calls     int
	assertion string
}

func (f *fakeMinter) CreateInstallationToken(ctx context.Context, assertion string, installationID int64) (github.InstallationToken, error) {
	f.calls++
	f.assertion = assertion
	if f.err != nil {
		return github.InstallationToken{}, f.err
	}
	return f.token, nil
}

func newInstallationDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Installation{}))
	return db
}

func TestTokenReturnsCachedWhileValid(t *testing.T) {
	db := newInstallationDB(t)
	cipher, err := security.NewTokenCipher(testCipherKey)
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("ghs_cached")
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, db.Create(&models.Installation{InstallationID: 321, TokenEnc: encrypted, TokenExpiresAt: &expiry}).Error)

	minter := &fakeMinter{}
	svc := NewInstallationTokenService(repository.NewInstallationRepository(db), fakeSigner{assertion: "signed"}, minter, cipher, zerolog.Nop())

	token, err := svc.Token(context.Background(), 321)
	require.NoError(t, err)
	require.Equal(t, "ghs_cached", token)

	// A second call inside the expiry window returns the same token, no mint.
	again, err := svc.Token(context.Background(), 321)
	require.NoError(t, err)
	require.Equal(t, token, again)
	require.Zero(t, minter.calls)
}

func TestTokenRefreshesWhenExpired(t *testing.T) {
	db := newInstallationDB(t)
	cipher, err := security.NewTokenCipher(testCipherKey)
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("ghs_stale")
	require.NoError(t, err)

	expiry := time.Now().Add(-time.Minute)
	require.NoError(t, db.Create(&models.Installation{InstallationID: 321, TokenEnc: encrypted, TokenExpiresAt: &expiry}).Error)

	hostExpiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	minter := &fakeMinter{token: github.InstallationToken{Token: "ghs_fresh", ExpiresAt: hostExpiry}}
	svc := NewInstallationTokenService(repository.NewInstallationRepository(db), fakeSigner{assertion: "signed"}, minter, cipher, zerolog.Nop())

	token, err := svc.Token(context.Background(), 321)
	require.NoError(t, err)
	require.Equal(t, "ghs_fresh", token)
	require.Equal(t, 1, minter.calls)
	require.Equal(t, "signed", minter.assertion)

	// The fresh token and the host expiry are persisted in ciphertext.
	var stored models.Installation
	require.NoError(t, db.Where("installation_id = ?", int64(321)).First(&stored).Error)
	plaintext, err := cipher.Decrypt(stored.TokenEnc)
	require.NoError(t, err)
	require.Equal(t, "ghs_fresh", plaintext)
	require.NotNil(t, stored.TokenExpiresAt)
	require.Equal(t, hostExpiry.Unix(), stored.TokenExpiresAt.Unix())
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	db := newInstallationDB(t)
	cipher, err := security.NewTokenCipher(testCipherKey)
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("ghs_nearly_stale")
	require.NoError(t, err)

	// Still valid, but inside the refresh margin.
	expiry := time.Now().Add(time.Minute)
	require.NoError(t, db.Create(&models.Installation{InstallationID: 321, TokenEnc: encrypted, TokenExpiresAt: &expiry}).Error)

	minter := &fakeMinter{token: github.InstallationToken{Token: "ghs_fresh", ExpiresAt: time.Now().Add(time.Hour)}}
	svc := NewInstallationTokenService(repository.NewInstallationRepository(db), fakeSigner{assertion: "signed"}, minter, cipher, zerolog.Nop())

	token, err := svc.Token(context.Background(), 321)
	require.NoError(t, err)
	require.Equal(t, "ghs_fresh", token)
	require.Equal(t, 1, minter.calls)
}

func TestTokenRefusesSuspendedInstallation(t *testing.T) {
	db := newInstallationDB(t)
	cipher, err := security.NewTokenCipher(testCipherKey)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Installation{InstallationID: 321, Suspended: true}).Error)

	minter := &fakeMinter{}
	svc := NewInstallationTokenService(repository.NewInstallationRepository(db), fakeSigner{assertion: "signed"}, minter, cipher, zerolog.Nop())

	_, err = svc.Token(context.Background(), 321)
	require.ErrorIs(t, err, ErrInstallationSuspended)
	require.Zero(t, minter.calls)
}

func TestTokenUnknownInstallation(t *testing.T) {
	db := newInstallationDB(t)
	cipher, err := security.NewTokenCipher(testCipherKey)
	require.NoError(t, err)

	svc := NewInstallationTokenService(repository.NewInstallationRepository(db), fakeSigner{assertion: "signed"}, &fakeMinter{}, cipher, zerolog.Nop())

	_, err = svc.Token(context.Background(), 999)
	require.ErrorIs(t, err, ErrNoInstallation)
}

func TestTokenRefreshesUndecryptableCiphertext(t *testing.T) {
	db := newInstallationDB(t)
	cipher, err := security.NewTokenCipher(testCipherKey)
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, db.Create(&models.Installation{InstallationID: 321, TokenEnc: "garbage", TokenExpiresAt: &expiry}).Error)

	minter := &fakeMinter{token: github.InstallationToken{Token: "ghs_fresh", ExpiresAt: time.Now().Add(time.Hour)}}
	svc := NewInstallationTokenService(repository.NewInstallationRepository(db), fakeSigner{assertion: "signed"}, minter, cipher, zerolog.Nop())

	token, err := svc.Token(context.Background(), 321)
	require.NoError(t, err)
	require.Equal(t, "ghs_fresh", token)
	require.Equal(t, 1, minter.calls)
}
