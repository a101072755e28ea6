package domain

import "time"

// OAuthLink durably binds a third-party identity to a local account, keyed
// by (provider, subject). Re-linking the same identity repoints the user.
type OAuthLink struct {
	Provider      string
	Subject       string
	UserID        string
	EmailSnapshot string // provider-reported email at link time, may be empty
	CreatedAt     time.Time
}

// OAuthState is the one-time anti-forgery state for a redirect flow.
// Consuming it deletes the row; a second consumer finds nothing.
type OAuthState struct {
	ID          string
	Provider    string
	RedirectURI string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
