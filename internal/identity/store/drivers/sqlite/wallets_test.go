package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/stretchr/testify/require"
)

func TestWalletCreateOnboardingOnce(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "wallet@example.com")
	now := time.Now().UTC()

	first := domain.WalletOnboarding{
		UserID:                 u.ID,
		AccountID:              "acct-1",
		Network:                "mainnet",
		SeedPhraseHash:         "ref-aaaa",
		EncryptedPrivateKeyRef: "kms://key-1",
		CreatedAt:              now,
	}
	created, err := s.WalletOnboardings().CreateOnboarding(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	// A retried onboarding is a quiet no-op; the original record wins.
	second := first
	second.AccountID = "acct-2"
	second.SeedPhraseHash = "ref-bbbb"
	created, err = s.WalletOnboardings().CreateOnboarding(ctx, second)
	require.NoError(t, err)
	require.False(t, created)

	got, err := s.WalletOnboardings().GetOnboarding(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "acct-1", got.AccountID)
	require.Equal(t, "ref-aaaa", got.SeedPhraseHash)
	require.Nil(t, got.AcknowledgedAt)
}

func TestWalletAcknowledgeIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "ack@example.com")
	now := time.Now().UTC()

	_, err := s.WalletOnboardings().CreateOnboarding(ctx, domain.WalletOnboarding{
		UserID:                 u.ID,
		AccountID:              "acct-9",
		Network:                "mainnet",
		SeedPhraseHash:         "ref-cccc",
		EncryptedPrivateKeyRef: "kms://key-9",
		CreatedAt:              now,
	})
	require.NoError(t, err)

	require.NoError(t, s.WalletOnboardings().Acknowledge(ctx, u.ID, now.Add(time.Minute)))

	got, err := s.WalletOnboardings().GetOnboarding(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AcknowledgedAt)
	firstAck := got.AcknowledgedAt.UnixMilli()

	// Second acknowledgement succeeds but never moves the stamp.
	require.NoError(t, s.WalletOnboardings().Acknowledge(ctx, u.ID, now.Add(time.Hour)))

	got, err = s.WalletOnboardings().GetOnboarding(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, firstAck, got.AcknowledgedAt.UnixMilli())
}

func TestWalletAcknowledgeMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	err := s.WalletOnboardings().Acknowledge(ctx, "no-such-user", time.Now().UTC())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.WalletOnboardings().GetOnboarding(ctx, "no-such-user")
	require.ErrorIs(t, err, store.ErrNotFound)
}
