// Package domain defines the persistent entities of the identity backend.
// Structs here carry no behavior beyond small derivations; lifecycle rules
// are enforced by the store's atomic statements.
package domain

import "time"

type User struct {
	ID            string
	Email         string // unique, matched case-insensitively
	EmailVerified bool
	PasswordHash  string // scrypt encoded, empty for passkey/OAuth-only accounts
	DisplayName   string
	MFASecret     *string    // TOTP secret, base32 (nullable)
	MFAEnabledAt  *time.Time // set once TOTP activation succeeds
	CreatedAt     time.Time
	VerifiedAt    *time.Time // set on the first false->true verification only
}
