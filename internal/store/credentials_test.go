package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*CredentialStore, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	return NewCredentialStore(client, 30*time.Minute, zerolog.Nop()), mini
}

func TestPutAndGetCredentials(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	creds := CandidateCredentials{Token: "gho_token", Username: "octocat"}
	require.NoError(t, store.PutCredentials(ctx, "c@example.com", creds))

	got, err := store.GetCredentials(ctx, "c@example.com")
	require.NoError(t, err)
	require.Equal(t, creds, got)
}

func TestGetCredentialsExpired(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetCredentials(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrCredentialsExpired)

	require.NoError(t, store.PutCredentials(ctx, "c@example.com", CandidateCredentials{Token: "t", Username: "u"}))
	mini.FastForward(31 * time.Minute)

	_, err = store.GetCredentials(ctx, "c@example.com")
	require.ErrorIs(t, err, ErrCredentialsExpired)
}

func TestCredentialsAreScopedByEmail(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutCredentials(ctx, "a@example.com", CandidateCredentials{Token: "ta", Username: "ua"}))
	require.NoError(t, store.PutCredentials(ctx, "b@example.com", CandidateCredentials{Token: "tb", Username: "ub"}))

	got, err := store.GetCredentials(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, "ua", got.Username)
}

func TestStateIsSingleUse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state, err := store.IssueState(ctx, "c@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	consumed, err := store.ConsumeState(ctx, "c@example.com")
	require.NoError(t, err)
	require.Equal(t, state, consumed)

	_, err = store.ConsumeState(ctx, "c@example.com")
	require.ErrorIs(t, err, ErrStateNotFound)
}

func TestStateExpires(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()

	_, err := store.IssueState(ctx, "c@example.com")
	require.NoError(t, err)

	mini.FastForward(31 * time.Minute)

	_, err = store.ConsumeState(ctx, "c@example.com")
	require.ErrorIs(t, err, ErrStateNotFound)
}

func TestIssueStateReplacesPrevious(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.IssueState(ctx, "c@example.com")
	require.NoError(t, err)
	second, err := store.IssueState(ctx, "c@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	consumed, err := store.ConsumeState(ctx, "c@example.com")
	require.NoError(t, err)
	require.Equal(t, second, consumed)
}
