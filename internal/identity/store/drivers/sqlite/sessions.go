package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
)

type sessionsRepo struct {
	db *sql.DB
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TokenHash, toMillis(s.ExpiresAt), toMillis(s.CreatedAt))
	if err != nil {
		return mapConflict(err)
	}
	return nil
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions
		WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, toMillis(now))

	var s domain.Session
	var expiresAt, createdAt int64
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &expiresAt, &createdAt); err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

func (r *sessionsRepo) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	return err
}
