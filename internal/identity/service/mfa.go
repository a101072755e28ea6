package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/ratex"
	"github.com/edgecoder/identity/pkg/slogx"
)

var (
	ErrInvalidTOTPCode   = errors.New("invalid TOTP code")
	ErrMFANotEnrolled    = errors.New("MFA not enrolled for this user")
	ErrMFANotEnabled     = errors.New("MFA not enabled for this user")
	ErrMFAAlreadyEnabled = errors.New("MFA already enabled for this user")
)

// MFAService manages TOTP second factors. Enrollment stages a secret on the
// account; activation proves the user's authenticator generates matching
// codes before MFA starts guarding logins.
type MFAService struct {
	Store  store.Store
	Issuer string // issuer label shown in authenticator apps

	// Limiter throttles code verification per user. Optional.
	Limiter *ratex.Limiter
}

// MFAEnrollment is handed back to the user to finish setup in their
// authenticator app.
type MFAEnrollment struct {
	Secret string
	URL    string // otpauth:// provisioning URL
}

// EnrollTOTP stages a fresh TOTP secret on the account. MFA is not active
// until ActivateTOTP verifies a code; re-enrolling before activation
// replaces the staged secret.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (MFAEnrollment, error) {
	log := slogx.FromContext(ctx)

	// 1. An already-active account has to disable first.
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return MFAEnrollment{}, err
	}
	if user.MFAEnabledAt != nil {
		return MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	// 2. Generate the key.
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		log.Error("failed to generate TOTP key", slog.Any("error", err))
		return MFAEnrollment{}, err
	}

	// 3. Stage the secret.
	if err := s.Store.Users().UpdateMFASecret(ctx, userID, key.Secret()); err != nil {
		log.Error("failed to store MFA secret",
			slog.String("user_id", userID), slog.Any("error", err))
		return MFAEnrollment{}, err
	}

	return MFAEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ActivateTOTP verifies a code against the staged secret and turns MFA on.
func (s *MFAService) ActivateTOTP(ctx context.Context, userID, code string) error {
	log := slogx.FromContext(ctx)

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFASecret == nil || *user.MFASecret == "" {
		return ErrMFANotEnrolled
	}
	if user.MFAEnabledAt != nil {
		return ErrMFAAlreadyEnabled
	}

	if !totp.Validate(code, *user.MFASecret) {
		log.Warn("invalid TOTP code during activation", slog.String("user_id", userID))
		return ErrInvalidTOTPCode
	}

	if err := s.Store.Users().EnableMFA(ctx, userID, time.Now().UTC()); err != nil {
		log.Error("failed to enable MFA",
			slog.String("user_id", userID), slog.Any("error", err))
		return err
	}

	log.Info("MFA enabled", slog.String("user_id", userID))
	return nil
}

// VerifyCode checks a login-time TOTP code for an MFA-enabled account.
// Attempts are throttled per user.
func (s *MFAService) VerifyCode(ctx context.Context, userID, code string) error {
	log := slogx.FromContext(ctx)

	if s.Limiter != nil && !s.Limiter.Allow(userID) {
		log.Warn("TOTP attempts throttled", slog.String("user_id", userID))
		return ErrTooManyAttempts
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabledAt == nil || user.MFASecret == nil {
		return ErrMFANotEnabled
	}

	if !totp.Validate(code, *user.MFASecret) {
		log.Warn("invalid TOTP code", slog.String("user_id", userID))
		return ErrInvalidTOTPCode
	}
	return nil
}

// Disable turns MFA off after a final code check, clearing the secret.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	log := slogx.FromContext(ctx)

	if err := s.VerifyCode(ctx, userID, code); err != nil {
		return err
	}
	if err := s.Store.Users().DisableMFA(ctx, userID); err != nil {
		log.Error("failed to disable MFA",
			slog.String("user_id", userID), slog.Any("error", err))
		return err
	}

	log.Info("MFA disabled", slog.String("user_id", userID))
	return nil
}

func (s *MFAService) getUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	return user, nil
}
