// Package service implements the identity backend's business operations on
// top of the store contract. Services are thin structs over store.Store;
// each operation validates, calls the store's atomic statements, and logs
// through the context logger.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/credutil"
	"github.com/edgecoder/identity/pkg/idx"
	"github.com/edgecoder/identity/pkg/ratex"
	"github.com/edgecoder/identity/pkg/slogx"
)

const defaultVerificationTTL = 24 * time.Hour

var (
	ErrInvalidSignUp      = errors.New("invalid signup request")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTooManyAttempts    = errors.New("too many attempts, try again later")
	ErrTokenNotFound      = errors.New("verification token not found or expired")
)

// IdentityService owns account signup, email verification and password
// authentication.
type IdentityService struct {
	Store store.Store

	// Limiter throttles password attempts per email. Optional; nil means
	// no throttling.
	Limiter *ratex.Limiter

	// VerificationTTL bounds email verification tokens. Zero falls back
	// to 24 hours.
	VerificationTTL time.Duration
}

// SignUpResult carries the raw verification credentials minted at signup.
// The caller delivers them to the user (email is an external collaborator);
// only their fingerprints are persisted. Token redeems through VerifyEmail,
// Code through VerifyEmailByCode.
type SignUpResult struct {
	User  domain.User
	Token string
	Code  string
}

// SignUp creates an account and mints its email verification token and
// six-digit confirmation code.
func (s *IdentityService) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate input.
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") || password == "" {
		return SignUpResult{}, ErrInvalidSignUp
	}

	// 2. Hash the password before anything hits storage.
	hash, err := credutil.HashPassword(password)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return SignUpResult{}, err
	}

	// 3. Create the user. A duplicate email surfaces as a conflict from
	// the store's unique index, case-insensitively.
	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			log.Warn("signup with taken email")
			return SignUpResult{}, ErrEmailTaken
		}
		log.Error("failed to create user", slog.Any("error", err))
		return SignUpResult{}, err
	}

	// 4. Mint the verification token and code; store the fingerprint only.
	token, code, err := s.mintVerification(ctx, user.ID, now)
	if err != nil {
		return SignUpResult{}, err
	}

	log.Info("user signed up", slog.String("user_id", user.ID))
	return SignUpResult{User: user, Token: token, Code: code}, nil
}

// ResendVerification mints a fresh verification token for an existing,
// still-unverified account. Earlier tokens stay valid until they expire.
func (s *IdentityService) ResendVerification(ctx context.Context, email string) (token, code string, err error) {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrInvalidCredentials
		}
		log.Error("failed to fetch user", slog.Any("error", err))
		return "", "", err
	}
	if user.EmailVerified {
		return "", "", ErrTokenNotFound
	}
	return s.mintVerification(ctx, user.ID, time.Now().UTC())
}

func (s *IdentityService) mintVerification(ctx context.Context, userID string, now time.Time) (string, string, error) {
	log := slogx.FromContext(ctx)

	token, err := credutil.GenerateToken(credutil.TokenSize256)
	if err != nil {
		log.Error("failed to generate verification token", slog.Any("error", err))
		return "", "", err
	}
	code, err := credutil.GenerateSixDigitCode()
	if err != nil {
		log.Error("failed to generate verification code", slog.Any("error", err))
		return "", "", err
	}

	ttl := s.VerificationTTL
	if ttl <= 0 {
		ttl = defaultVerificationTTL
	}
	err = s.Store.EmailVerificationTokens().CreateToken(ctx, domain.EmailVerificationToken{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: credutil.FingerprintToken(token),
		CodeHash:  credutil.FingerprintToken(code),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		log.Error("failed to store verification token", slog.Any("error", err))
		return "", "", err
	}
	return token, code, nil
}

// VerifyEmail consumes a verification token, marks the account verified and
// fans the verification out to every node enrollment the account owns.
// The consume is atomic: exactly one concurrent caller succeeds for a given
// token, everyone else gets ErrTokenNotFound.
func (s *IdentityService) VerifyEmail(ctx context.Context, rawToken string) (domain.User, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// 1. Claim the token by fingerprint. Expired and already-consumed
	// tokens are indistinguishable from unknown ones.
	consumed, err := s.Store.EmailVerificationTokens().ConsumeToken(ctx,
		credutil.FingerprintToken(rawToken), now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrTokenNotFound
		}
		log.Error("failed to consume verification token", slog.Any("error", err))
		return domain.User{}, err
	}

	return s.finishVerification(ctx, consumed.UserID, now)
}

// VerifyEmailByCode redeems the six-digit confirmation code instead of the
// token. Codes are short enough to guess, so attempts are throttled per
// email, and the claim itself is the same single-use statement the token
// path uses.
func (s *IdentityService) VerifyEmailByCode(ctx context.Context, email, code string) (domain.User, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// 1. Throttle before touching storage.
	key := strings.ToLower(strings.TrimSpace(email))
	if s.Limiter != nil && !s.Limiter.Allow(key) {
		log.Warn("code verification attempts throttled")
		return domain.User{}, ErrTooManyAttempts
	}

	// 2. Resolve the account the code is scoped to.
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrTokenNotFound
		}
		log.Error("failed to fetch user", slog.Any("error", err))
		return domain.User{}, err
	}

	// 3. Claim by code fingerprint, one winner per token.
	consumed, err := s.Store.EmailVerificationTokens().ConsumeTokenByCode(ctx,
		user.ID, credutil.FingerprintToken(code), now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrTokenNotFound
		}
		log.Error("failed to consume verification code", slog.Any("error", err))
		return domain.User{}, err
	}

	return s.finishVerification(ctx, consumed.UserID, now)
}

// finishVerification stamps the user and fans the verification out to their
// node enrollments. Shared by the token and code redemption paths; safe to
// repeat because every statement involved is idempotent.
func (s *IdentityService) finishVerification(ctx context.Context, userID string, now time.Time) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Stamp the user. Repeat verifications (a second valid token) leave
	// the original stamp alone.
	changed, err := s.Store.Users().MarkEmailVerified(ctx, userID, now)
	if err != nil {
		log.Error("failed to mark user verified",
			slog.String("user_id", userID), slog.Any("error", err))
		return domain.User{}, err
	}

	// 2. Fan out to the user's node enrollments so approved nodes go
	// active.
	touched, err := s.Store.NodeEnrollments().MarkOwnerEmailVerified(ctx, userID, now)
	if err != nil {
		log.Error("failed to fan out email verification",
			slog.String("user_id", userID), slog.Any("error", err))
		return domain.User{}, err
	}

	log.Info("email verified",
		slog.String("user_id", userID),
		slog.Bool("first_verification", changed),
		slog.Int64("enrollments_touched", touched),
	)

	return s.Store.Users().GetUserByID(ctx, userID)
}

// Authenticate checks an email/password pair. Attempts are throttled per
// email; MFA, when enabled on the account, is the caller's next step via
// MFAService.VerifyCode.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Throttle before touching storage so guessing burns the budget
	// whether or not the account exists.
	key := strings.ToLower(strings.TrimSpace(email))
	if s.Limiter != nil && !s.Limiter.Allow(key) {
		log.Warn("login attempts throttled")
		return domain.User{}, ErrTooManyAttempts
	}

	// 2. Look up the account.
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		log.Error("failed to fetch user", slog.Any("error", err))
		return domain.User{}, err
	}

	// 3. Verify the password. Accounts created through OAuth or passkeys
	// have no hash and cannot use password login.
	if user.PasswordHash == "" || !credutil.VerifyPassword(password, user.PasswordHash) {
		log.Warn("failed login attempt", slog.String("user_id", user.ID))
		return domain.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// ChangePassword rotates the password hash after re-verifying the current
// password, then revokes every live session for the account.
func (s *IdentityService) ChangePassword(ctx context.Context, userID, current, next string) error {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if user.PasswordHash == "" || !credutil.VerifyPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if next == "" {
		return ErrInvalidSignUp
	}

	hash, err := credutil.HashPassword(next)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return err
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		log.Error("failed to update password hash",
			slog.String("user_id", userID), slog.Any("error", err))
		return err
	}

	if err := s.Store.Sessions().DeleteUserSessions(ctx, userID); err != nil {
		log.Error("failed to revoke sessions after password change",
			slog.String("user_id", userID), slog.Any("error", err))
		return err
	}

	log.Info("password changed", slog.String("user_id", userID))
	return nil
}
