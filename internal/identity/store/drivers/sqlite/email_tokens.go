package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
)

type emailTokensRepo struct {
	db *sql.DB
}

func (r *emailTokensRepo) CreateToken(ctx context.Context, t domain.EmailVerificationToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_verification_tokens (id, user_id, token_hash, code_hash, expires_at, consumed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.CodeHash, toMillis(t.ExpiresAt),
		toMillisNull(t.ConsumedAt), toMillis(t.CreatedAt))
	if err != nil {
		return mapConflict(err)
	}
	return nil
}

// ConsumeToken is the single-use claim: the conditional UPDATE only matches
// an unconsumed, unexpired row, so when two callers race, the database
// serializes the statements and the second one matches nothing. Expired and
// already-spent tokens are deliberately indistinguishable to the caller.
func (r *emailTokensRepo) ConsumeToken(ctx context.Context, tokenHash string, now time.Time) (domain.EmailVerificationToken, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE email_verification_tokens
		SET consumed_at = ?
		WHERE token_hash = ? AND consumed_at IS NULL AND expires_at > ?
		RETURNING id, user_id, token_hash, code_hash, expires_at, consumed_at, created_at`,
		toMillis(now), tokenHash, toMillis(now))
	return scanConsumedToken(row)
}

// ConsumeTokenByCode claims by (user, code fingerprint) with the same
// single-use predicate. The code is only unique per user, and resends can
// leave several live rows; the subquery pins the claim to one row so a
// coincidental collision never spends two tokens.
func (r *emailTokensRepo) ConsumeTokenByCode(ctx context.Context, userID, codeHash string, now time.Time) (domain.EmailVerificationToken, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE email_verification_tokens
		SET consumed_at = ?
		WHERE id = (
			SELECT id FROM email_verification_tokens
			WHERE user_id = ? AND code_hash = ? AND consumed_at IS NULL AND expires_at > ?
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, user_id, token_hash, code_hash, expires_at, consumed_at, created_at`,
		toMillis(now), userID, codeHash, toMillis(now))
	return scanConsumedToken(row)
}

func scanConsumedToken(row *sql.Row) (domain.EmailVerificationToken, error) {
	var t domain.EmailVerificationToken
	var expiresAt, createdAt int64
	var consumedAt sql.NullInt64
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CodeHash, &expiresAt, &consumedAt, &createdAt); err != nil {
		return domain.EmailVerificationToken{}, mapNotFound(err)
	}
	t.ExpiresAt = fromMillis(expiresAt)
	t.ConsumedAt = fromMillisNull(consumedAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *emailTokensRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM email_verification_tokens WHERE expires_at <= ?`, toMillis(now))
	return err
}
