package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/talentforge/talentforge-api/internal/store"
	"github.com/talentforge/talentforge-api/pkg/github"
)

// ErrInvalidState indicates an OAuth callback whose state does not match the
// one issued for the email, or one that was already consumed.
var ErrInvalidState = errors.New("oauth state mismatch")

// CandidateAuthService runs the candidate's OAuth flow. Candidates have no
// durable account; a successful exchange leaves a (token, username) pair in
// the ephemeral store under their email, valid for the store's TTL.
type CandidateAuthService interface {
	InstallURL(ctx context.Context, email string) (string, error)
	HandleCallback(ctx context.Context, email, state, code string) error
}

// oauthExchanger is the slice of the VCS client the auth flow needs.
type oauthExchanger interface {
	AuthorizeURL(state string) string
	ExchangeOAuthCode(ctx context.Context, code string) (string, error)
	GetAuthenticatedUser(ctx context.Context, token string) (github.AuthenticatedUser, error)
}

type candidateAuthService struct {
	credentials *store.CredentialStore
	client      oauthExchanger
	logger      zerolog.Logger
}

// NewCandidateAuthService constructs the candidate OAuth flow handler.
func NewCandidateAuthService(credentials *store.CredentialStore, client oauthExchanger, logger zerolog.Logger) CandidateAuthService {
	return &candidateAuthService{
		credentials: credentials,
		client:      client,
		logger:      logger.With().Str("component", "candidate_auth_service").Logger(),
	}
}

// InstallURL issues a one-time state string for the email and returns the
// host authorization URL carrying it.
func (s *candidateAuthService) InstallURL(ctx context.Context, email string) (string, error) {
	state, err := s.credentials.IssueState(ctx, email)
	if err != nil {
		return "", err
	}

	return s.client.AuthorizeURL(state), nil
}

// HandleCallback consumes the pending state for the email, exchanges the
// authorization code and stores the resulting credentials ephemerally. The
// state is single-use: replaying a callback fails on the consume step.
func (s *candidateAuthService) HandleCallback(ctx context.Context, email, state, code string) error {
	issued, err := s.credentials.ConsumeState(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrStateNotFound) {
			return ErrInvalidState
		}
		return err
	}
	if issued != state {
		return ErrInvalidState
	}

	token, err := s.client.ExchangeOAuthCode(ctx, code)
	if err != nil {
		return fmt.Errorf("oauth code exchange failed: %w", err)
	}

	user, err := s.client.GetAuthenticatedUser(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to resolve token owner: %w", err)
	}

	if err := s.credentials.PutCredentials(ctx, email, store.CandidateCredentials{
		Token:    token,
		Username: user.Login,
	}); err != nil {
		return err
	}

	s.logger.Info().Str("email", email).Str("login", user.Login).Msg("candidate authorized")

	return nil
}
