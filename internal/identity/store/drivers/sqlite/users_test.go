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

func TestUsersCreateAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "Alice@Example.com")

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.False(t, got.EmailVerified)
	require.Nil(t, got.VerifiedAt)

	t.Run("email lookup is case-insensitive", func(t *testing.T) {
		got, err := s.Users().GetUserByEmail(ctx, "alice@example.COM")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := s.Users().GetUserByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestUsersDuplicateEmail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	createTestUser(t, s, "dup@example.com")

	err := s.Users().CreateUser(ctx, domain.User{
		ID:        idx.New().String(),
		Email:     "DUP@example.com", // differs only by case
		CreatedAt: time.Now().UTC(),
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestUsersMarkEmailVerifiedOnce(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "verify@example.com")

	first := time.Now().UTC().Truncate(time.Millisecond)
	changed, err := s.Users().MarkEmailVerified(ctx, u.ID, first)
	require.NoError(t, err)
	require.True(t, changed)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
	require.NotNil(t, got.VerifiedAt)
	require.Equal(t, first, *got.VerifiedAt)

	// A later call must not move the stamp.
	changed, err = s.Users().MarkEmailVerified(ctx, u.ID, first.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, changed)

	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, first, *got.VerifiedAt)
}

func TestUsersMFALifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "mfa@example.com")

	// Enabling before a secret is staged must fail.
	err := s.Users().EnableMFA(ctx, u.ID, time.Now().UTC())
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, "JBSWY3DPEHPK3PXP"))
	require.NoError(t, s.Users().EnableMFA(ctx, u.ID, time.Now().UTC()))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MFASecret)
	require.NotNil(t, got.MFAEnabledAt)

	require.NoError(t, s.Users().DisableMFA(ctx, u.ID))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, got.MFASecret)
	require.Nil(t, got.MFAEnabledAt)
}
