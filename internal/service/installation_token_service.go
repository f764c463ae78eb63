package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/repository"
	"github.com/talentforge/talentforge-api/internal/security"
	"github.com/talentforge/talentforge-api/pkg/github"
)

// ErrNoInstallation indicates the installation is unknown to the platform.
var ErrNoInstallation = errors.New("installation not found")

// ErrInstallationSuspended indicates the account suspended the platform app;
// no token can be minted until the grant is restored.
var ErrInstallationSuspended = errors.New("installation is suspended")

// refreshMargin is subtracted from the stored expiry so a token returned to a
// caller stays valid for the duration of a provisioning workflow.
const refreshMargin = 2 * time.Minute

// InstallationTokenService hands out installation-scoped access tokens,
// refreshing them through the app signer when expired or absent.
//
// Concurrent refreshes of the same installation are deliberately not
// serialized: the host accepts multiple simultaneously valid tokens, so a
// duplicate mint is wasteful but never unsafe.
type InstallationTokenService interface {
	Token(ctx context.Context, installationID int64) (string, error)
}

// assertionSigner produces signed app assertions.
type assertionSigner interface {
	SignAssertion() (string, error)
}

// installationTokenMinter mints installation tokens on the VCS host.
type installationTokenMinter interface {
	CreateInstallationToken(ctx context.Context, assertion string, installationID int64) (github.InstallationToken, error)
}

type installationTokenService struct {
	installations repository.InstallationRepository
	signer        assertionSigner
	minter        installationTokenMinter
	cipher        *security.TokenCipher
	logger        zerolog.Logger
	now           func() time.Time
}

// NewInstallationTokenService constructs the token cache.
func NewInstallationTokenService(installations repository.InstallationRepository, signer assertionSigner, minter installationTokenMinter, cipher *security.TokenCipher, logger zerolog.Logger) InstallationTokenService {
	return &installationTokenService{
		installations: installations,
		signer:        signer,
		minter:        minter,
		cipher:        cipher,
		logger:        logger.With().Str("component", "installation_token_service").Logger(),
		now:           time.Now,
	}
}

func (s *installationTokenService) Token(ctx context.Context, installationID int64) (string, error) {
	installation, err := s.installations.GetByInstallationID(ctx, installationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoInstallation
		}
		return "", err
	}

	if installation.Suspended {
		return "", ErrInstallationSuspended
	}

	if installation.HasValidToken(s.now().Add(refreshMargin)) {
		plaintext, err := s.cipher.Decrypt(installation.TokenEnc)
		if err == nil {
			return plaintext, nil
		}

		// Undecryptable ciphertext is treated like an expired token: fall
		// through to a refresh instead of failing.
		s.logger.Warn().Err(err).Int64("installation_id", installationID).Msg("stored installation token unusable, refreshing")
	}

	return s.refresh(ctx, installation)
}

func (s *installationTokenService) refresh(ctx context.Context, installation models.Installation) (string, error) {
	assertion, err := s.signer.SignAssertion()
	if err != nil {
		return "", err
	}

	minted, err := s.minter.CreateInstallationToken(ctx, assertion, installation.InstallationID)
	if err != nil {
		return "", fmt.Errorf("failed to mint installation token: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(minted.Token)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt installation token: %w", err)
	}

	// Expiry always comes from the host response, never a local computation.
	expiresAt := minted.ExpiresAt
	installation.TokenEnc = encrypted
	installation.TokenExpiresAt = &expiresAt

	if err := s.installations.Update(ctx, &installation); err != nil {
		return "", fmt.Errorf("failed to persist installation token: %w", err)
	}

	s.logger.Info().Int64("installation_id", installation.InstallationID).Time("expires_at", expiresAt).Msg("installation token refreshed")

	return minted.Token, nil
}
