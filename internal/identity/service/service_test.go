package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/internal/identity/store/drivers/sqlite"
)

// newTestStore opens a real sqlite store on a temp file with migrations
// applied, so service tests exercise the same atomic statements production
// runs.
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// signUpTestUser pushes a user through SignUp and returns the result with
// its raw verification token.
func signUpTestUser(t *testing.T, svc *IdentityService, email string) SignUpResult {
	t.Helper()

	res, err := svc.SignUp(context.Background(), email, "correct horse battery", "Test User")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Len(t, res.Code, 6)
	return res
}

// verifiedTestUser signs up and verifies an account in one step.
func verifiedTestUser(t *testing.T, st store.Store, email string) domain.User {
	t.Helper()

	svc := &IdentityService{Store: st}
	res := signUpTestUser(t, svc, email)
	user, err := svc.VerifyEmail(context.Background(), res.Token)
	require.NoError(t, err)
	require.True(t, user.EmailVerified)
	return user
}
