package domain

import "time"

// Session is an issued login session. Only the token fingerprint is stored;
// lookups go through the fingerprint and filter out expired rows.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// EmailVerificationToken is a single-use email confirmation token. It can
// be redeemed either by the opaque token (link flow) or by the short numeric
// code (manual entry); both are stored as fingerprints and both go through
// the same conditional update: unconsumed, unexpired, exactly once.
type EmailVerificationToken struct {
	ID         string
	UserID     string
	TokenHash  string
	CodeHash   string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
