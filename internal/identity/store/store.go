// Package store defines the persistence contract for the identity backend.
// Concrete drivers (sqlite today) implement Store. Every mutating operation
// is a single atomic database statement (conditional update, delete-
// returning or conflict-handling insert), so correctness under concurrent
// callers reduces to the database's statement-level atomicity. There is
// deliberately no transaction API: no operation here needs to span
// statements.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyExists surfaces unique-constraint violations, e.g. a
	// duplicate email on signup.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface, exposing one sub-repository per
// entity to keep concerns tidy and independently testable.
type Store interface {
	Users() Users
	Sessions() Sessions
	EmailVerificationTokens() EmailVerificationTokens
	OAuthLinks() OAuthLinks
	OAuthStates() OAuthStates
	NodeEnrollments() NodeEnrollments
	WalletOnboardings() WalletOnboardings
	PasskeyChallenges() PasskeyChallenges
	PasskeyCredentials() PasskeyCredentials

	ApplyMigrations() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the email is taken, case-insensitively.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// MarkEmailVerified flips emailVerified false->true and stamps
	// verifiedAt, exactly once: later calls leave the stamp alone and
	// report changed=false.
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) (changed bool, err error)

	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// UpdateMFASecret stages a TOTP secret prior to activation.
	UpdateMFASecret(ctx context.Context, userID, secret string) error

	// EnableMFA stamps mfaEnabledAt once activation verification passes.
	EnableMFA(ctx context.Context, userID string, at time.Time) error

	// DisableMFA clears both the secret and the enabled stamp.
	DisableMFA(ctx context.Context, userID string) error
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenHash returns only unexpired sessions; expired rows
	// are invisible and swept by housekeeping.
	GetSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.Session, error)

	DeleteSession(ctx context.Context, sessionID string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

type EmailVerificationTokens interface {
	CreateToken(ctx context.Context, t domain.EmailVerificationToken) error

	// ConsumeToken atomically claims an unconsumed, unexpired token by its
	// fingerprint. Exactly one concurrent caller wins; everyone else,
	// including any caller holding an expired or spent token, gets
	// ErrNotFound.
	ConsumeToken(ctx context.Context, tokenHash string, now time.Time) (domain.EmailVerificationToken, error)

	// ConsumeTokenByCode claims by the user's six-digit code fingerprint
	// instead of the token fingerprint, under the same single-use
	// predicate. Claims at most one row per call.
	ConsumeTokenByCode(ctx context.Context, userID, codeHash string, now time.Time) (domain.EmailVerificationToken, error)

	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

type OAuthLinks interface {
	// UpsertLink idempotently binds (provider, subject) to a user,
	// repointing userID and emailSnapshot on re-link. Never errors on
	// conflict.
	UpsertLink(ctx context.Context, l domain.OAuthLink) error

	GetLink(ctx context.Context, provider, subject string) (domain.OAuthLink, error)
}

type OAuthStates interface {
	CreateState(ctx context.Context, s domain.OAuthState) error

	// ConsumeState deletes-and-returns an unexpired state. Strictly
	// one-time: a second consume finds nothing.
	ConsumeState(ctx context.Context, stateID string, now time.Time) (domain.OAuthState, error)

	DeleteExpiredStates(ctx context.Context, now time.Time) error
}

type NodeEnrollments interface {
	// UpsertEnrollment creates the enrollment or, on conflict, overwrites
	// kind/owner/token-hash/emailVerified while preserving the stored
	// approval flag; active is recomputed in the same statement.
	UpsertEnrollment(ctx context.Context, e domain.NodeEnrollment) (domain.NodeEnrollment, error)

	GetEnrollment(ctx context.Context, nodeID string) (domain.NodeEnrollment, error)
	ListOwnerEnrollments(ctx context.Context, ownerUserID string) ([]domain.NodeEnrollment, error)

	// SetApproval sets nodeApproved and recomputes active against the
	// row's current emailVerified, atomically.
	SetApproval(ctx context.Context, nodeID string, approved bool, at time.Time) (domain.NodeEnrollment, error)

	// MarkOwnerEmailVerified fans a user's email verification out to all
	// of their enrollments in one statement, recomputing active per row
	// from that row's own approval flag. Returns rows touched.
	MarkOwnerEmailVerified(ctx context.Context, ownerUserID string, at time.Time) (int64, error)

	// TouchValidation records a liveness ping. Patch fields that are nil
	// keep their stored values; active is never affected.
	TouchValidation(ctx context.Context, nodeID string, patch domain.ValidationPatch, at time.Time) error
}

type WalletOnboardings interface {
	// CreateOnboarding inserts at most one record per user; a duplicate
	// create is a silent no-op and reports created=false.
	CreateOnboarding(ctx context.Context, w domain.WalletOnboarding) (created bool, err error)

	GetOnboarding(ctx context.Context, userID string) (domain.WalletOnboarding, error)

	// Acknowledge stamps acknowledgedAt once; repeat calls are no-ops.
	Acknowledge(ctx context.Context, userID string, at time.Time) error
}

type PasskeyChallenges interface {
	CreateChallenge(ctx context.Context, c domain.PasskeyChallenge) error

	// ConsumeChallenge deletes-and-returns an unexpired challenge; one
	// winner per challenge, ErrNotFound for everyone else.
	ConsumeChallenge(ctx context.Context, challengeID string, now time.Time) (domain.PasskeyChallenge, error)

	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

type PasskeyCredentials interface {
	// UpsertCredential registers or re-registers by credential id,
	// replacing the public key and metadata on conflict.
	UpsertCredential(ctx context.Context, c domain.PasskeyCredential) error

	GetCredential(ctx context.Context, credentialID string) (domain.PasskeyCredential, error)

	// UpdateCounter persists a verifier-accepted signature counter and
	// bumps lastUsedAt. Monotonicity was checked by the caller's verifier.
	UpdateCounter(ctx context.Context, credentialID string, counter uint32, at time.Time) error

	// ListUserCredentials returns a user's credentials newest-first.
	ListUserCredentials(ctx context.Context, userID string) ([]domain.PasskeyCredential, error)

	DeleteCredential(ctx context.Context, credentialID string) error
}
