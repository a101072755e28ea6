package service

import (
	"context"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/require"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/pkg/credutil"
)

func registerTestPasskey(t *testing.T, svc *PasskeyService, userID, credentialID string) domain.PasskeyCredential {
	t.Helper()
	ctx := context.Background()

	challenge, err := svc.BeginRegistration(ctx, userID)
	require.NoError(t, err)

	credential, err := svc.FinishRegistration(ctx, challenge.ID,
		credutil.PasskeyPayload{ID: credentialID},
		VerifiedCredential{
			WebauthnUserID: "wau-" + userID,
			PublicKey:      "cHVibGljLWtleQ",
			DeviceType:     "multiDevice",
			BackedUp:       true,
			Transports:     []string{"internal", "hybrid", "carrier-pigeon"},
		})
	require.NoError(t, err)
	return credential
}

func TestPasskeyRegistration(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &PasskeyService{Store: st}
	ctx := context.Background()

	user := verifiedTestUser(t, st, "pk-reg@example.com")

	challenge, err := svc.BeginRegistration(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.FlowRegistration, challenge.Flow)
	require.Equal(t, user.ID, challenge.UserID)

	// The client submits a padded standard-base64 id; storage gets the
	// canonical base64url form.
	credential, err := svc.FinishRegistration(ctx, challenge.ID,
		credutil.PasskeyPayload{Response: credutil.AuthenticatorResponse{RawID: "ab+/=="}},
		VerifiedCredential{
			WebauthnUserID: "wau-1",
			PublicKey:      "a2V5",
			DeviceType:     "singleDevice",
			Transports:     []string{"usb"},
		})
	require.NoError(t, err)
	require.Equal(t, "ab-_", credential.CredentialID)
	require.Equal(t, []protocol.AuthenticatorTransport{protocol.USB}, credential.Transports)

	// The challenge is spent.
	_, err = svc.FinishRegistration(ctx, challenge.ID,
		credutil.PasskeyPayload{ID: "another"}, VerifiedCredential{PublicKey: "a2V5"})
	require.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = svc.BeginRegistration(ctx, "ghost-user")
	require.ErrorIs(t, err, ErrUnknownPasskeyUser)
}

func TestPasskeyRegistrationRequiresCredentialID(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &PasskeyService{Store: st}
	ctx := context.Background()

	user := verifiedTestUser(t, st, "pk-empty@example.com")
	challenge, err := svc.BeginRegistration(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, challenge.ID,
		credutil.PasskeyPayload{}, VerifiedCredential{PublicKey: "a2V5"})
	require.ErrorIs(t, err, ErrMissingCredentialID)
}

func TestPasskeyLogin(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &PasskeyService{Store: st}
	ctx := context.Background()

	user := verifiedTestUser(t, st, "pk-login@example.com")
	credential := registerTestPasskey(t, svc, user.ID, "login-cred")

	challenge, err := svc.BeginLogin(ctx, user.Email)
	require.NoError(t, err)
	require.Equal(t, domain.FlowAuthentication, challenge.Flow)
	require.Equal(t, user.ID, challenge.UserID)

	got, err := svc.FinishLogin(ctx, challenge.ID,
		credutil.PasskeyPayload{ID: credential.CredentialID}, 9)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	list, err := svc.ListCredentials(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.EqualValues(t, 9, list[0].Counter)
	require.NotNil(t, list[0].LastUsedAt)

	// One-time challenge.
	_, err = svc.FinishLogin(ctx, challenge.ID,
		credutil.PasskeyPayload{ID: credential.CredentialID}, 10)
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestPasskeyLoginDiscoverable(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &PasskeyService{Store: st}
	ctx := context.Background()

	user := verifiedTestUser(t, st, "pk-disc@example.com")
	credential := registerTestPasskey(t, svc, user.ID, "disc-cred")

	// No email hint: the authenticator's credential picks the account.
	challenge, err := svc.BeginLogin(ctx, "")
	require.NoError(t, err)
	require.Empty(t, challenge.UserID)

	got, err := svc.FinishLogin(ctx, challenge.ID,
		credutil.PasskeyPayload{ID: credential.CredentialID}, 1)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	// Unknown emails still get a challenge.
	challenge, err = svc.BeginLogin(ctx, "stranger@example.com")
	require.NoError(t, err)
	require.Empty(t, challenge.UserID)
	require.Equal(t, "stranger@example.com", challenge.Email)
}

func TestPasskeyLoginOwnershipMismatch(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &PasskeyService{Store: st}
	ctx := context.Background()

	alice := verifiedTestUser(t, st, "pk-alice@example.com")
	mallory := verifiedTestUser(t, st, "pk-mallory@example.com")
	malloryCred := registerTestPasskey(t, svc, mallory.ID, "mallory-cred")

	// A challenge minted for alice cannot be answered with mallory's
	// credential.
	challenge, err := svc.BeginLogin(ctx, alice.Email)
	require.NoError(t, err)
	_, err = svc.FinishLogin(ctx, challenge.ID,
		credutil.PasskeyPayload{ID: malloryCred.CredentialID}, 1)
	require.ErrorIs(t, err, ErrChallengeOwnership)
}

func TestPasskeyFlowMismatch(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &PasskeyService{Store: st}
	ctx := context.Background()

	user := verifiedTestUser(t, st, "pk-flow@example.com")

	reg, err := svc.BeginRegistration(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.FinishLogin(ctx, reg.ID, credutil.PasskeyPayload{ID: "x"}, 1)
	require.ErrorIs(t, err, ErrChallengeFlow)

	login, err := svc.BeginLogin(ctx, user.Email)
	require.NoError(t, err)
	_, err = svc.FinishRegistration(ctx, login.ID,
		credutil.PasskeyPayload{ID: "x"}, VerifiedCredential{PublicKey: "a2V5"})
	require.ErrorIs(t, err, ErrChallengeFlow)
}

func TestPasskeyRemoveCredential(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &PasskeyService{Store: st}
	ctx := context.Background()

	alice := verifiedTestUser(t, st, "pk-rm-a@example.com")
	bob := verifiedTestUser(t, st, "pk-rm-b@example.com")
	cred := registerTestPasskey(t, svc, alice.ID, "rm-cred")

	// Ownership is enforced; bob cannot remove alice's passkey.
	require.ErrorIs(t,
		svc.RemoveCredential(ctx, bob.ID, cred.CredentialID),
		ErrCredentialNotFound)

	require.NoError(t, svc.RemoveCredential(ctx, alice.ID, cred.CredentialID))
	list, err := svc.ListCredentials(ctx, alice.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}
