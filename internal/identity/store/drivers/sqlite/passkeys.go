package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
)

type passkeyChallengesRepo struct {
	db *sql.DB
}

func (r *passkeyChallengesRepo) CreateChallenge(ctx context.Context, c domain.PasskeyChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO passkey_challenges (id, user_id, email, challenge, flow_type, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, mapStringNull(c.UserID), mapStringNull(c.Email), c.Challenge,
		string(c.Flow), toMillis(c.ExpiresAt), toMillis(c.CreatedAt))
	if err != nil {
		return mapConflict(err)
	}
	return nil
}

// ConsumeChallenge hands the challenge to exactly one caller via
// delete-returning; expired challenges are unreachable through the expiry
// predicate and swept later.
func (r *passkeyChallengesRepo) ConsumeChallenge(ctx context.Context, challengeID string, now time.Time) (domain.PasskeyChallenge, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM passkey_challenges
		WHERE id = ? AND expires_at > ?
		RETURNING id, user_id, email, challenge, flow_type, expires_at, created_at`,
		challengeID, toMillis(now))

	var c domain.PasskeyChallenge
	var userID, email sql.NullString
	var flow string
	var expiresAt, createdAt int64
	err := row.Scan(&c.ID, &userID, &email, &c.Challenge, &flow, &expiresAt, &createdAt)
	if err != nil {
		return domain.PasskeyChallenge{}, mapNotFound(err)
	}
	c.UserID = mapNullString(userID)
	c.Email = mapNullString(email)
	c.Flow = domain.FlowType(flow)
	c.ExpiresAt = fromMillis(expiresAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *passkeyChallengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM passkey_challenges WHERE expires_at <= ?`, toMillis(now))
	return err
}

type passkeyCredentialsRepo struct {
	db *sql.DB
}

const credentialColumns = `credential_id, user_id, webauthn_user_id, public_key,
	counter, device_type, backed_up, transports, created_at, last_used_at`

func scanCredential(row rowScanner) (domain.PasskeyCredential, error) {
	var c domain.PasskeyCredential
	var transports sql.NullString
	var createdAt int64
	var lastUsedAt sql.NullInt64

	err := row.Scan(&c.CredentialID, &c.UserID, &c.WebauthnUserID, &c.PublicKey,
		&c.Counter, &c.DeviceType, &c.BackedUp, &transports, &createdAt, &lastUsedAt)
	if err != nil {
		return domain.PasskeyCredential{}, mapNotFound(err)
	}
	c.Transports = splitTransports(mapNullString(transports))
	c.CreatedAt = fromMillis(createdAt)
	c.LastUsedAt = fromMillisNull(lastUsedAt)
	return c, nil
}

// UpsertCredential makes registration idempotent at the storage layer: a
// re-submitted ceremony for the same credential id replaces the key and
// metadata the external verifier already accepted.
func (r *passkeyCredentialsRepo) UpsertCredential(ctx context.Context, c domain.PasskeyCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO passkey_credentials (credential_id, user_id, webauthn_user_id,
			public_key, counter, device_type, backed_up, transports, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (credential_id) DO UPDATE SET
			user_id = excluded.user_id,
			webauthn_user_id = excluded.webauthn_user_id,
			public_key = excluded.public_key,
			counter = excluded.counter,
			device_type = excluded.device_type,
			backed_up = excluded.backed_up,
			transports = excluded.transports`,
		c.CredentialID, c.UserID, c.WebauthnUserID, c.PublicKey, c.Counter,
		c.DeviceType, c.BackedUp, mapStringNull(joinTransports(c.Transports)),
		toMillis(c.CreatedAt), toMillisNull(c.LastUsedAt))
	return err
}

func (r *passkeyCredentialsRepo) GetCredential(ctx context.Context, credentialID string) (domain.PasskeyCredential, error) {
	return scanCredential(r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM passkey_credentials WHERE credential_id = ?`,
		credentialID))
}

func (r *passkeyCredentialsRepo) UpdateCounter(ctx context.Context, credentialID string, counter uint32, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE passkey_credentials SET counter = ?, last_used_at = ?
		WHERE credential_id = ?`,
		counter, toMillis(at), credentialID)
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

func (r *passkeyCredentialsRepo) ListUserCredentials(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+credentialColumns+`
		FROM passkey_credentials
		WHERE user_id = ?
		ORDER BY created_at DESC, credential_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PasskeyCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *passkeyCredentialsRepo) DeleteCredential(ctx context.Context, credentialID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM passkey_credentials WHERE credential_id = ?`, credentialID)
	return err
}
