package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/credutil"
	"github.com/edgecoder/identity/pkg/slogx"
)

var (
	ErrWalletNotFound = errors.New("wallet onboarding not found")
	ErrInvalidWallet  = errors.New("invalid wallet onboarding request")
)

// WalletService records custodial wallet onboarding. The seed phrase passes
// through exactly once, at creation, and leaves only a peppered HMAC
// reference behind.
type WalletService struct {
	Store store.Store

	// Pepper keys the seed phrase derivation. Must be set.
	Pepper string
}

// CreateOnboarding records that a wallet was provisioned for the user.
// At most one record per user: a retried onboarding returns the existing
// record with created=false and derives nothing new into storage.
func (s *WalletService) CreateOnboarding(ctx context.Context, userID, accountID, network, seedPhrase, encryptedKeyRef string) (domain.WalletOnboarding, bool, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate.
	if userID == "" || accountID == "" || seedPhrase == "" {
		return domain.WalletOnboarding{}, false, ErrInvalidWallet
	}

	// 2. Derive the non-reversible seed reference; the phrase itself goes
	// no further than this call.
	onboarding := domain.WalletOnboarding{
		UserID:                 userID,
		AccountID:              accountID,
		Network:                network,
		SeedPhraseHash:         credutil.DeriveWalletSecretRef(seedPhrase, accountID, s.Pepper),
		EncryptedPrivateKeyRef: encryptedKeyRef,
		CreatedAt:              time.Now().UTC(),
	}

	// 3. Insert, quietly losing to an existing record.
	created, err := s.Store.WalletOnboardings().CreateOnboarding(ctx, onboarding)
	if err != nil {
		log.Error("failed to create wallet onboarding",
			slog.String("user_id", userID), slog.Any("error", err))
		return domain.WalletOnboarding{}, false, err
	}
	if !created {
		existing, err := s.Store.WalletOnboardings().GetOnboarding(ctx, userID)
		if err != nil {
			return domain.WalletOnboarding{}, false, err
		}
		return existing, false, nil
	}

	log.Info("wallet onboarding created",
		slog.String("user_id", userID), slog.String("network", network))
	return onboarding, true, nil
}

// GetOnboarding returns the user's wallet record.
func (s *WalletService) GetOnboarding(ctx context.Context, userID string) (domain.WalletOnboarding, error) {
	onboarding, err := s.Store.WalletOnboardings().GetOnboarding(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.WalletOnboarding{}, ErrWalletNotFound
		}
		return domain.WalletOnboarding{}, err
	}
	return onboarding, nil
}

// Acknowledge stamps that the user confirmed they backed up their seed
// phrase. Idempotent: the first acknowledgement sets the stamp, later ones
// succeed without moving it.
func (s *WalletService) Acknowledge(ctx context.Context, userID string) error {
	err := s.Store.WalletOnboardings().Acknowledge(ctx, userID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrWalletNotFound
		}
		return err
	}
	return nil
}
