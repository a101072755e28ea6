package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
)

type nodeEnrollmentsRepo struct {
	db *sql.DB
}

const nodeColumns = `node_id, node_kind, owner_user_id, owner_email,
	registration_token_hash, email_verified, node_approved, active,
	last_seen_at, last_ip, last_country_code, last_vpn_detected,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (domain.NodeEnrollment, error) {
	var e domain.NodeEnrollment
	var kind string
	var lastSeenAt sql.NullInt64
	var lastIP, lastCountry sql.NullString
	var lastVPN sql.NullBool
	var createdAt, updatedAt int64

	err := row.Scan(&e.NodeID, &kind, &e.OwnerUserID, &e.OwnerEmail,
		&e.RegistrationTokenHash, &e.EmailVerified, &e.NodeApproved, &e.Active,
		&lastSeenAt, &lastIP, &lastCountry, &lastVPN, &createdAt, &updatedAt)
	if err != nil {
		return domain.NodeEnrollment{}, mapNotFound(err)
	}

	e.Kind = domain.NodeKind(kind)
	e.LastSeenAt = fromMillisNull(lastSeenAt)
	e.LastIP = mapNullStringPtr(lastIP)
	e.LastCountryCode = mapNullStringPtr(lastCountry)
	e.LastVPNDetected = mapNullBoolPtr(lastVPN)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return e, nil
}

// UpsertEnrollment registers a node. Re-registration overwrites the mutable
// registration inputs but must not reset an approval an admin already
// granted, so the conflict branch recomputes active from the row's stored
// node_approved and the incoming email_verified in the same statement.
func (r *nodeEnrollmentsRepo) UpsertEnrollment(ctx context.Context, e domain.NodeEnrollment) (domain.NodeEnrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO node_enrollments (node_id, node_kind, owner_user_id, owner_email,
			registration_token_hash, email_verified, node_approved, active,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
		ON CONFLICT (node_id) DO UPDATE SET
			node_kind = excluded.node_kind,
			owner_user_id = excluded.owner_user_id,
			owner_email = excluded.owner_email,
			registration_token_hash = excluded.registration_token_hash,
			email_verified = excluded.email_verified,
			active = (node_enrollments.node_approved AND excluded.email_verified),
			updated_at = excluded.updated_at
		RETURNING `+nodeColumns,
		e.NodeID, string(e.Kind), e.OwnerUserID, e.OwnerEmail,
		e.RegistrationTokenHash, e.EmailVerified,
		toMillis(e.CreatedAt), toMillis(e.UpdatedAt))
	return scanEnrollment(row)
}

func (r *nodeEnrollmentsRepo) GetEnrollment(ctx context.Context, nodeID string) (domain.NodeEnrollment, error) {
	return scanEnrollment(r.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM node_enrollments WHERE node_id = ?`, nodeID))
}

func (r *nodeEnrollmentsRepo) ListOwnerEnrollments(ctx context.Context, ownerUserID string) ([]domain.NodeEnrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM node_enrollments
		WHERE owner_user_id = ?
		ORDER BY created_at DESC, node_id`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NodeEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *nodeEnrollmentsRepo) SetApproval(ctx context.Context, nodeID string, approved bool, at time.Time) (domain.NodeEnrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE node_enrollments
		SET node_approved = ?, active = (? AND email_verified), updated_at = ?
		WHERE node_id = ?
		RETURNING `+nodeColumns,
		approved, approved, toMillis(at), nodeID)
	return scanEnrollment(row)
}

// MarkOwnerEmailVerified flips email_verified for every enrollment of the
// owner in one statement. With email_verified now 1, active reduces to the
// row's own approval flag.
func (r *nodeEnrollmentsRepo) MarkOwnerEmailVerified(ctx context.Context, ownerUserID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE node_enrollments
		SET email_verified = 1, active = node_approved, updated_at = ?
		WHERE owner_user_id = ?`,
		toMillis(at), ownerUserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *nodeEnrollmentsRepo) TouchValidation(ctx context.Context, nodeID string, patch domain.ValidationPatch, at time.Time) error {
	// COALESCE keeps the stored value for every patch field left nil.
	res, err := r.db.ExecContext(ctx, `
		UPDATE node_enrollments
		SET last_seen_at = ?,
			last_ip = COALESCE(?, last_ip),
			last_country_code = COALESCE(?, last_country_code),
			last_vpn_detected = COALESCE(?, last_vpn_detected),
			updated_at = ?
		WHERE node_id = ?`,
		toMillis(at), mapOptionalString(patch.SourceIP),
		mapOptionalString(patch.CountryCode), mapOptionalBool(patch.VPNDetected),
		toMillis(at), nodeID)
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
