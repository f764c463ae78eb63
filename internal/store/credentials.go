package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis key prefixes for ephemeral candidate state. Candidates have no durable
// account row, so their VCS credentials live only here, under a fixed TTL.
const (
	candidateTokenKey    = "candidate_github_token:%s"
	candidateUsernameKey = "candidate_github_username:%s"
	installStateKey      = "github_install_url_random_string:%s"
)

// ErrCredentialsExpired indicates the candidate has no live credentials and
// must re-authorize before the operation can proceed.
var ErrCredentialsExpired = errors.New("candidate credentials missing or expired")

// ErrStateNotFound indicates an OAuth state string that was never issued, was
// already consumed, or has expired.
var ErrStateNotFound = errors.New("oauth state not found")

// CandidateCredentials is the transient (token, username) pair held for an
// authenticated candidate.
type CandidateCredentials struct {
	Token    string
	Username string
}

// CredentialStore keeps short-lived candidate credentials and one-time OAuth
// state strings in Redis.
type CredentialStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCredentialStore builds a store with the given credential TTL.
func NewCredentialStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CredentialStore {
	return &CredentialStore{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "credential_store").Logger(),
	}
}

// PutCredentials stores the candidate's token and username under the email
// key, both with the configured TTL.
func (s *CredentialStore) PutCredentials(ctx context.Context, email string, creds CandidateCredentials) error {
	if err := s.redis.Set(ctx, fmt.Sprintf(candidateTokenKey, email), creds.Token, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store candidate token: %w", err)
	}
	if err := s.redis.Set(ctx, fmt.Sprintf(candidateUsernameKey, email), creds.Username, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store candidate username: %w", err)
	}

	s.logger.Debug().Str("email", email).Msg("candidate credentials stored")
	return nil
}

// GetCredentials returns the live credentials for the email, or
// ErrCredentialsExpired when either half is gone.
func (s *CredentialStore) GetCredentials(ctx context.Context, email string) (CandidateCredentials, error) {
	token, err := s.redis.Get(ctx, fmt.Sprintf(candidateTokenKey, email)).Result()
	if err == redis.Nil {
		return CandidateCredentials{}, ErrCredentialsExpired
	}
	if err != nil {
		return CandidateCredentials{}, fmt.Errorf("failed to read candidate token: %w", err)
	}

	username, err := s.redis.Get(ctx, fmt.Sprintf(candidateUsernameKey, email)).Result()
	if err == redis.Nil {
		return CandidateCredentials{}, ErrCredentialsExpired
	}
	if err != nil {
		return CandidateCredentials{}, fmt.Errorf("failed to read candidate username: %w", err)
	}

	return CandidateCredentials{Token: token, Username: username}, nil
}

// IssueState creates and stores a one-time random state string correlating an
// OAuth redirect back to the email that initiated it.
func (s *CredentialStore) IssueState(ctx context.Context, email string) (string, error) {
	state := uuid.NewString()
	if err := s.redis.Set(ctx, fmt.Sprintf(installStateKey, email), state, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	return state, nil
}

// ConsumeState deletes and returns the pending state string for the email.
// States are single-use: a second consume for the same email fails.
func (s *CredentialStore) ConsumeState(ctx context.Context, email string) (string, error) {
	key := fmt.Sprintf(installStateKey, email)

	state, err := s.redis.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}

	return state, nil
}
