package domain

import "time"

// WalletOnboarding records that a custodial wallet was provisioned for a
// user. One record per user, created at most once. SeedPhraseHash is a keyed
// derivation of the seed phrase (never the phrase itself) and
// EncryptedPrivateKeyRef points at key material held by an external
// custodian; no raw secrets live in this table.
type WalletOnboarding struct {
	UserID                 string
	AccountID              string
	Network                string
	SeedPhraseHash         string
	EncryptedPrivateKeyRef string
	CreatedAt              time.Time
	AcknowledgedAt         *time.Time // set once, idempotently
}
