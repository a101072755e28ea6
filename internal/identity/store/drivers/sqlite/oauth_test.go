package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestOAuthLinkUpsertRepoints(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u1 := createTestUser(t, s, "link-one@example.com")
	u2 := createTestUser(t, s, "link-two@example.com")
	now := time.Now().UTC()

	require.NoError(t, s.OAuthLinks().UpsertLink(ctx, domain.OAuthLink{
		Provider:      "github",
		Subject:       "gh-123",
		UserID:        u1.ID,
		EmailSnapshot: "alice@github.example",
		CreatedAt:     now,
	}))

	got, err := s.OAuthLinks().GetLink(ctx, "github", "gh-123")
	require.NoError(t, err)
	require.Equal(t, u1.ID, got.UserID)
	require.Equal(t, "alice@github.example", got.EmailSnapshot)

	// Same provider identity linked again repoints to the new account.
	require.NoError(t, s.OAuthLinks().UpsertLink(ctx, domain.OAuthLink{
		Provider:  "github",
		Subject:   "gh-123",
		UserID:    u2.ID,
		CreatedAt: now.Add(time.Minute),
	}))

	got, err = s.OAuthLinks().GetLink(ctx, "github", "gh-123")
	require.NoError(t, err)
	require.Equal(t, u2.ID, got.UserID)
	require.Empty(t, got.EmailSnapshot)
}

func TestOAuthLinkProvidersAreDistinct(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "multi@example.com")
	now := time.Now().UTC()

	require.NoError(t, s.OAuthLinks().UpsertLink(ctx, domain.OAuthLink{
		Provider: "github", Subject: "sub-1", UserID: u.ID, CreatedAt: now,
	}))
	require.NoError(t, s.OAuthLinks().UpsertLink(ctx, domain.OAuthLink{
		Provider: "google", Subject: "sub-1", UserID: u.ID, CreatedAt: now,
	}))

	_, err := s.OAuthLinks().GetLink(ctx, "github", "sub-1")
	require.NoError(t, err)
	_, err = s.OAuthLinks().GetLink(ctx, "gitlab", "sub-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOAuthStateConsumeOnce(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	state := domain.OAuthState{
		ID:          idx.New().String(),
		Provider:    "github",
		RedirectURI: "https://app.example/callback",
		ExpiresAt:   now.Add(10 * time.Minute),
		CreatedAt:   now,
	}
	require.NoError(t, s.OAuthStates().CreateState(ctx, state))

	got, err := s.OAuthStates().ConsumeState(ctx, state.ID, now)
	require.NoError(t, err)
	require.Equal(t, state.Provider, got.Provider)
	require.Equal(t, state.RedirectURI, got.RedirectURI)

	_, err = s.OAuthStates().ConsumeState(ctx, state.ID, now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOAuthStateExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	state := domain.OAuthState{
		ID:          idx.New().String(),
		Provider:    "google",
		RedirectURI: "https://app.example/callback",
		ExpiresAt:   now.Add(-time.Second),
		CreatedAt:   now.Add(-time.Hour),
	}
	require.NoError(t, s.OAuthStates().CreateState(ctx, state))

	_, err := s.OAuthStates().ConsumeState(ctx, state.ID, now)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.OAuthStates().DeleteExpiredStates(ctx, now))
}
