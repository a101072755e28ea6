package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOAuthCompleteFlowCreatesUser(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &OAuthService{Store: st}
	ctx := context.Background()

	state, err := svc.BeginFlow(ctx, "github", "https://app.example/callback")
	require.NoError(t, err)

	ident := ProviderIdentity{
		Provider:      "github",
		Subject:       "gh-42",
		Email:         "newcomer@example.com",
		EmailVerified: true,
	}
	user, err := svc.CompleteFlow(ctx, state.ID, ident)
	require.NoError(t, err)
	require.Equal(t, "newcomer@example.com", user.Email)
	// Provider-vouched addresses arrive verified.
	require.True(t, user.EmailVerified)
	require.Equal(t, "newcomer", user.DisplayName)

	link, err := svc.FindLink(ctx, "github", "gh-42")
	require.NoError(t, err)
	require.Equal(t, user.ID, link.UserID)

	// Replaying the completed flow finds no state.
	_, err = svc.CompleteFlow(ctx, state.ID, ident)
	require.ErrorIs(t, err, ErrStateNotFound)
}

func TestOAuthCompleteFlowExistingLink(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &OAuthService{Store: st}
	ctx := context.Background()

	first, err := svc.BeginFlow(ctx, "google", "https://app.example/cb")
	require.NoError(t, err)
	ident := ProviderIdentity{
		Provider: "google", Subject: "g-7",
		Email: "linked@example.com", EmailVerified: true,
	}
	created, err := svc.CompleteFlow(ctx, first.ID, ident)
	require.NoError(t, err)

	// A later login through the same provider identity lands on the same
	// account even if the provider email changed.
	second, err := svc.BeginFlow(ctx, "google", "https://app.example/cb")
	require.NoError(t, err)
	ident.Email = "renamed@example.com"
	again, err := svc.CompleteFlow(ctx, second.ID, ident)
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
}

func TestOAuthCompleteFlowMatchesExistingAccount(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	identity := &IdentityService{Store: st}
	svc := &OAuthService{Store: st}
	ctx := context.Background()

	// Password account, not yet verified.
	res := signUpTestUser(t, identity, "dual@example.com")

	state, err := svc.BeginFlow(ctx, "github", "https://app.example/cb")
	require.NoError(t, err)
	user, err := svc.CompleteFlow(ctx, state.ID, ProviderIdentity{
		Provider: "github", Subject: "gh-dual",
		Email: "dual@example.com", EmailVerified: true,
	})
	require.NoError(t, err)
	require.Equal(t, res.User.ID, user.ID)
	// The provider vouched for the address, so the account is verified now.
	require.True(t, user.EmailVerified)
}

func TestOAuthCompleteFlowRejections(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &OAuthService{Store: st}
	ctx := context.Background()

	t.Run("unknown state", func(t *testing.T) {
		_, err := svc.CompleteFlow(ctx, "no-such-state", ProviderIdentity{
			Provider: "github", Subject: "x", Email: "x@example.com", EmailVerified: true,
		})
		require.ErrorIs(t, err, ErrStateNotFound)
	})

	t.Run("provider mismatch", func(t *testing.T) {
		state, err := svc.BeginFlow(ctx, "github", "https://app.example/cb")
		require.NoError(t, err)
		_, err = svc.CompleteFlow(ctx, state.ID, ProviderIdentity{
			Provider: "google", Subject: "x", Email: "x@example.com", EmailVerified: true,
		})
		require.ErrorIs(t, err, ErrStateProviderMismatch)
	})

	t.Run("unverified provider email", func(t *testing.T) {
		state, err := svc.BeginFlow(ctx, "github", "https://app.example/cb")
		require.NoError(t, err)
		_, err = svc.CompleteFlow(ctx, state.ID, ProviderIdentity{
			Provider: "github", Subject: "y", Email: "y@example.com", EmailVerified: false,
		})
		require.ErrorIs(t, err, ErrUnverifiedProviderMail)
	})
}
