package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
)

type oauthLinksRepo struct {
	db *sql.DB
}

func (r *oauthLinksRepo) UpsertLink(ctx context.Context, l domain.OAuthLink) error {
	// Re-linking the same provider identity repoints it silently; the
	// provider's subject is authoritative for who the identity belongs to.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_links (provider, provider_subject, user_id, email_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_subject) DO UPDATE SET
			user_id = excluded.user_id,
			email_snapshot = excluded.email_snapshot`,
		l.Provider, l.Subject, l.UserID, mapStringNull(l.EmailSnapshot), toMillis(l.CreatedAt))
	return err
}

func (r *oauthLinksRepo) GetLink(ctx context.Context, provider, subject string) (domain.OAuthLink, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT provider, provider_subject, user_id, email_snapshot, created_at
		FROM oauth_links
		WHERE provider = ? AND provider_subject = ?`,
		provider, subject)

	var l domain.OAuthLink
	var emailSnapshot sql.NullString
	var createdAt int64
	if err := row.Scan(&l.Provider, &l.Subject, &l.UserID, &emailSnapshot, &createdAt); err != nil {
		return domain.OAuthLink{}, mapNotFound(err)
	}
	l.EmailSnapshot = mapNullString(emailSnapshot)
	l.CreatedAt = fromMillis(createdAt)
	return l, nil
}

type oauthStatesRepo struct {
	db *sql.DB
}

func (r *oauthStatesRepo) CreateState(ctx context.Context, s domain.OAuthState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_states (id, provider, redirect_uri, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Provider, s.RedirectURI, toMillis(s.ExpiresAt), toMillis(s.CreatedAt))
	if err != nil {
		return mapConflict(err)
	}
	return nil
}

// ConsumeState deletes-and-returns in one statement; whichever caller's
// DELETE matches the row gets it, the rest see no rows.
func (r *oauthStatesRepo) ConsumeState(ctx context.Context, stateID string, now time.Time) (domain.OAuthState, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM oauth_states
		WHERE id = ? AND expires_at > ?
		RETURNING id, provider, redirect_uri, expires_at, created_at`,
		stateID, toMillis(now))

	var s domain.OAuthState
	var expiresAt, createdAt int64
	if err := row.Scan(&s.ID, &s.Provider, &s.RedirectURI, &expiresAt, &createdAt); err != nil {
		return domain.OAuthState{}, mapNotFound(err)
	}
	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (r *oauthStatesRepo) DeleteExpiredStates(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE expires_at <= ?`, toMillis(now))
	return err
}
