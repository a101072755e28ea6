package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/credutil"
	"github.com/edgecoder/identity/pkg/idx"
	"github.com/edgecoder/identity/pkg/slogx"
)

const defaultChallengeTTL = 5 * time.Minute

var (
	ErrChallengeNotFound    = errors.New("passkey challenge not found or expired")
	ErrChallengeFlow        = errors.New("passkey challenge belongs to a different flow")
	ErrCredentialNotFound   = errors.New("passkey credential not found")
	ErrMissingCredentialID  = errors.New("request carries no usable credential id")
	ErrChallengeOwnership   = errors.New("passkey challenge belongs to a different user")
	ErrUnknownPasskeyUser   = errors.New("passkey user account not found")
	ErrInvalidPasskeyFinish = errors.New("invalid passkey finish request")
)

// PasskeyService owns WebAuthn challenge lifecycle and credential records.
// Signature and attestation verification belongs to an external verifier;
// this service guarantees challenge one-time-ness, payload normalization
// and durable credential state.
type PasskeyService struct {
	Store store.Store

	// ChallengeTTL bounds ceremony challenges. Zero falls back to 5 minutes.
	ChallengeTTL time.Duration
}

// VerifiedCredential is what the external WebAuthn verifier accepted from a
// registration ceremony.
type VerifiedCredential struct {
	WebauthnUserID string
	PublicKey      string // unpadded base64url
	DeviceType     string
	BackedUp       bool
	Transports     []string
}

func (s *PasskeyService) createChallenge(ctx context.Context, userID, email string, flow domain.FlowType) (domain.PasskeyChallenge, error) {
	log := slogx.FromContext(ctx)

	nonce, err := credutil.GenerateToken(credutil.TokenSize256)
	if err != nil {
		log.Error("failed to generate passkey challenge", slog.Any("error", err))
		return domain.PasskeyChallenge{}, err
	}

	ttl := s.ChallengeTTL
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	now := time.Now().UTC()
	challenge := domain.PasskeyChallenge{
		ID:        idx.New().String(),
		UserID:    userID,
		Email:     email,
		Challenge: nonce,
		Flow:      flow,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.Store.PasskeyChallenges().CreateChallenge(ctx, challenge); err != nil {
		log.Error("failed to store passkey challenge", slog.Any("error", err))
		return domain.PasskeyChallenge{}, err
	}
	return challenge, nil
}

// BeginRegistration mints a one-time registration challenge for an existing
// account.
func (s *PasskeyService) BeginRegistration(ctx context.Context, userID string) (domain.PasskeyChallenge, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PasskeyChallenge{}, ErrUnknownPasskeyUser
		}
		return domain.PasskeyChallenge{}, err
	}
	return s.createChallenge(ctx, user.ID, user.Email, domain.FlowRegistration)
}

// BeginLogin mints a one-time authentication challenge. Email is an optional
// hint; an empty email starts a discoverable-credential flow where the
// authenticator chooses the account.
func (s *PasskeyService) BeginLogin(ctx context.Context, email string) (domain.PasskeyChallenge, error) {
	userID := ""
	if email != "" {
		user, err := s.Store.Users().GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			userID = user.ID
		case !errors.Is(err, store.ErrNotFound):
			return domain.PasskeyChallenge{}, err
		}
		// Unknown emails still get a challenge; answering differently
		// would reveal which addresses have accounts.
	}
	return s.createChallenge(ctx, userID, email, domain.FlowAuthentication)
}

// FinishRegistration consumes the registration challenge and persists the
// credential the external verifier accepted. The raw payload supplies the
// credential id, normalized to canonical base64url; re-registering an id
// replaces its key and metadata.
func (s *PasskeyService) FinishRegistration(ctx context.Context, challengeID string, payload credutil.PasskeyPayload, verified VerifiedCredential) (domain.PasskeyCredential, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// 1. One winner per challenge.
	challenge, err := s.Store.PasskeyChallenges().ConsumeChallenge(ctx, challengeID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PasskeyCredential{}, ErrChallengeNotFound
		}
		log.Error("failed to consume passkey challenge", slog.Any("error", err))
		return domain.PasskeyCredential{}, err
	}
	if challenge.Flow != domain.FlowRegistration {
		return domain.PasskeyCredential{}, ErrChallengeFlow
	}
	if challenge.UserID == "" {
		return domain.PasskeyCredential{}, ErrChallengeOwnership
	}

	// 2. Extract the credential id from the normalized payload.
	credentialID, ok := credutil.CredentialIDFromVerifyBody(credutil.NormalizePasskeyPayload(payload))
	if !ok {
		return domain.PasskeyCredential{}, ErrMissingCredentialID
	}
	publicKey, ok := credutil.NormalizeBase64URL(verified.PublicKey)
	if !ok {
		return domain.PasskeyCredential{}, ErrInvalidPasskeyFinish
	}

	// 3. Persist.
	credential := domain.PasskeyCredential{
		CredentialID:   credentialID,
		UserID:         challenge.UserID,
		WebauthnUserID: verified.WebauthnUserID,
		PublicKey:      publicKey,
		Counter:        0,
		DeviceType:     verified.DeviceType,
		BackedUp:       verified.BackedUp,
		Transports:     domain.NormalizeTransports(verified.Transports),
		CreatedAt:      now,
	}
	if err := s.Store.PasskeyCredentials().UpsertCredential(ctx, credential); err != nil {
		log.Error("failed to upsert passkey credential",
			slog.String("user_id", challenge.UserID), slog.Any("error", err))
		return domain.PasskeyCredential{}, err
	}

	log.Info("passkey registered", slog.String("user_id", challenge.UserID))
	return credential, nil
}

// FinishLogin consumes the authentication challenge, resolves the asserted
// credential and persists the verifier-accepted signature counter. Counter
// monotonicity was the verifier's check; this call just records the result.
func (s *PasskeyService) FinishLogin(ctx context.Context, challengeID string, payload credutil.PasskeyPayload, counter uint32) (domain.User, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// 1. One winner per challenge.
	challenge, err := s.Store.PasskeyChallenges().ConsumeChallenge(ctx, challengeID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrChallengeNotFound
		}
		log.Error("failed to consume passkey challenge", slog.Any("error", err))
		return domain.User{}, err
	}
	if challenge.Flow != domain.FlowAuthentication {
		return domain.User{}, ErrChallengeFlow
	}

	// 2. Resolve the asserted credential.
	credentialID, ok := credutil.CredentialIDFromVerifyBody(credutil.NormalizePasskeyPayload(payload))
	if !ok {
		return domain.User{}, ErrMissingCredentialID
	}
	credential, err := s.Store.PasskeyCredentials().GetCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrCredentialNotFound
		}
		return domain.User{}, err
	}

	// 3. A challenge minted for a known email must be answered by that
	// account's credential.
	if challenge.UserID != "" && challenge.UserID != credential.UserID {
		log.Warn("passkey login with mismatched account",
			slog.String("challenge_user_id", challenge.UserID),
			slog.String("credential_user_id", credential.UserID),
		)
		return domain.User{}, ErrChallengeOwnership
	}

	// 4. Record the accepted counter and touch last use.
	if err := s.Store.PasskeyCredentials().UpdateCounter(ctx, credentialID, counter, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrCredentialNotFound
		}
		return domain.User{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, credential.UserID)
	if err != nil {
		return domain.User{}, err
	}

	log.Info("passkey login", slog.String("user_id", user.ID))
	return user, nil
}

// ListCredentials returns the user's enrolled passkeys, newest first.
func (s *PasskeyService) ListCredentials(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	return s.Store.PasskeyCredentials().ListUserCredentials(ctx, userID)
}

// RemoveCredential deletes one enrolled passkey, checking ownership first.
func (s *PasskeyService) RemoveCredential(ctx context.Context, userID, credentialID string) error {
	credential, err := s.Store.PasskeyCredentials().GetCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCredentialNotFound
		}
		return err
	}
	if credential.UserID != userID {
		return ErrCredentialNotFound
	}
	return s.Store.PasskeyCredentials().DeleteCredential(ctx, credentialID)
}
