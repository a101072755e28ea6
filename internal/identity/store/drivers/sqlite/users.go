package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
)

type usersRepo struct {
	db *sql.DB
}

const userColumns = `id, email, email_verified, password_hash, display_name,
	mfa_secret, mfa_enabled_at, created_at, verified_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var passwordHash, displayName, mfaSecret sql.NullString
	var mfaEnabledAt, verifiedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&u.ID, &u.Email, &u.EmailVerified, &passwordHash, &displayName,
		&mfaSecret, &mfaEnabledAt, &createdAt, &verifiedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.PasswordHash = mapNullString(passwordHash)
	u.DisplayName = mapNullString(displayName)
	u.MFASecret = mapNullStringPtr(mfaSecret)
	u.MFAEnabledAt = fromMillisNull(mfaEnabledAt)
	u.CreatedAt = fromMillis(createdAt)
	u.VerifiedAt = fromMillisNull(verifiedAt)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, email_verified, password_hash, display_name,
			mfa_secret, mfa_enabled_at, created_at, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.EmailVerified, mapStringNull(u.PasswordHash),
		mapStringNull(u.DisplayName), mapOptionalString(u.MFASecret),
		toMillisNull(u.MFAEnabledAt), toMillis(u.CreatedAt), toMillisNull(u.VerifiedAt))
	if err != nil {
		return mapConflict(err)
	}
	return nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	// The email column is COLLATE NOCASE, so equality matches
	// case-insensitively.
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) MarkEmailVerified(ctx context.Context, userID string, at time.Time) (bool, error) {
	// The WHERE guard makes the first call stamp verified_at and every
	// later call a no-op, so the stamp never moves.
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email_verified = 1, verified_at = ?
		WHERE id = ? AND email_verified = 0`,
		toMillis(at), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return r.execExpectingRow(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, mapStringNull(newHash), userID)
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID, secret string) error {
	return r.execExpectingRow(ctx,
		`UPDATE users SET mfa_secret = ? WHERE id = ?`, mapStringNull(secret), userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, at time.Time) error {
	return r.execExpectingRow(ctx,
		`UPDATE users SET mfa_enabled_at = ? WHERE id = ? AND mfa_secret IS NOT NULL`,
		toMillis(at), userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	return r.execExpectingRow(ctx,
		`UPDATE users SET mfa_secret = NULL, mfa_enabled_at = NULL WHERE id = ?`, userID)
}

func (r *usersRepo) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
