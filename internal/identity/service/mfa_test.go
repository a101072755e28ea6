package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMFALifecycle(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &MFAService{Store: st, Issuer: "EdgeCoder"}
	ctx := context.Background()

	user := verifiedTestUser(t, st, "mfa@example.com")

	// 1. Enroll stages a secret without enabling anything.
	enrollment, err := svc.EnrollTOTP(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://")

	// Codes are rejected until activation proves the authenticator.
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, svc.VerifyCode(ctx, user.ID, code), ErrMFANotEnabled)

	// 2. Activation requires a valid code.
	require.ErrorIs(t, svc.ActivateTOTP(ctx, user.ID, "000000"), ErrInvalidTOTPCode)
	require.NoError(t, svc.ActivateTOTP(ctx, user.ID, code))

	// Re-enrolling or re-activating an enabled account is refused.
	_, err = svc.EnrollTOTP(ctx, user.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
	require.ErrorIs(t, svc.ActivateTOTP(ctx, user.ID, code), ErrMFAAlreadyEnabled)

	// 3. Login-time verification.
	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyCode(ctx, user.ID, code))
	require.ErrorIs(t, svc.VerifyCode(ctx, user.ID, "123456"), ErrInvalidTOTPCode)

	// 4. Disable clears the secret after a final code check.
	require.ErrorIs(t, svc.Disable(ctx, user.ID, "000000"), ErrInvalidTOTPCode)
	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Disable(ctx, user.ID, code))

	got, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, got.MFASecret)
	require.Nil(t, got.MFAEnabledAt)
}

func TestMFAActivateWithoutEnrollment(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &MFAService{Store: st, Issuer: "EdgeCoder"}
	ctx := context.Background()

	user := verifiedTestUser(t, st, "mfa-none@example.com")
	require.ErrorIs(t, svc.ActivateTOTP(ctx, user.ID, "123456"), ErrMFANotEnrolled)
	require.ErrorIs(t, svc.VerifyCode(ctx, user.ID, "123456"), ErrMFANotEnabled)
}
