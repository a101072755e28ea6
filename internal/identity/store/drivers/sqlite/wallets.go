package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
)

type walletsRepo struct {
	db *sql.DB
}

// CreateOnboarding provisions at most one wallet record per user. A second
// create hits the conflict clause and reports created=false without error,
// so retried onboarding flows stay quiet.
func (r *walletsRepo) CreateOnboarding(ctx context.Context, w domain.WalletOnboarding) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO wallet_onboardings (user_id, account_id, network,
			seed_phrase_hash, encrypted_private_key_ref, created_at, acknowledged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		w.UserID, w.AccountID, w.Network, w.SeedPhraseHash,
		w.EncryptedPrivateKeyRef, toMillis(w.CreatedAt), toMillisNull(w.AcknowledgedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *walletsRepo) GetOnboarding(ctx context.Context, userID string) (domain.WalletOnboarding, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, account_id, network, seed_phrase_hash,
			encrypted_private_key_ref, created_at, acknowledged_at
		FROM wallet_onboardings
		WHERE user_id = ?`, userID)

	var w domain.WalletOnboarding
	var createdAt int64
	var acknowledgedAt sql.NullInt64
	err := row.Scan(&w.UserID, &w.AccountID, &w.Network, &w.SeedPhraseHash,
		&w.EncryptedPrivateKeyRef, &createdAt, &acknowledgedAt)
	if err != nil {
		return domain.WalletOnboarding{}, mapNotFound(err)
	}
	w.CreatedAt = fromMillis(createdAt)
	w.AcknowledgedAt = fromMillisNull(acknowledgedAt)
	return w, nil
}

func (r *walletsRepo) Acknowledge(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallet_onboardings SET acknowledged_at = ?
		WHERE user_id = ? AND acknowledged_at IS NULL`,
		toMillis(at), userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Zero rows is either "already acknowledged" (fine, idempotent) or
	// "no record at all".
	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM wallet_onboardings WHERE user_id = ?`, userID).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}
	return nil
}

var _ store.WalletOnboardings = (*walletsRepo)(nil)
