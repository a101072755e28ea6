package domain

import (
	"errors"
	"slices"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// FlowType names the two WebAuthn ceremony kinds a challenge can belong to.
type FlowType string

const (
	FlowRegistration   FlowType = "registration"
	FlowAuthentication FlowType = "authentication"
)

var ErrInvalidFlowType = errors.New("domain: invalid passkey flow type")

func ParseFlowType(s string) (FlowType, error) {
	switch FlowType(s) {
	case FlowRegistration, FlowAuthentication:
		return FlowType(s), nil
	}
	return "", ErrInvalidFlowType
}

// PasskeyChallenge is a one-time server nonce for a WebAuthn ceremony.
// UserID is empty for email-first discoverable login flows.
type PasskeyChallenge struct {
	ID        string
	UserID    string
	Email     string
	Challenge string
	Flow      FlowType
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasskeyCredential is an enrolled WebAuthn credential. The external
// verifier owns signature and counter checking; this row persists the
// accepted public key and the last accepted counter.
type PasskeyCredential struct {
	CredentialID   string // canonical unpadded base64url
	UserID         string
	WebauthnUserID string
	PublicKey      string // unpadded base64url
	Counter        uint32
	DeviceType     string
	BackedUp       bool
	Transports     []protocol.AuthenticatorTransport
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// knownTransports is the canonical order transports are stored in.
var knownTransports = []protocol.AuthenticatorTransport{
	protocol.USB,
	protocol.NFC,
	protocol.BLE,
	protocol.SmartCard,
	protocol.Hybrid,
	protocol.Internal,
}

// NormalizeTransports filters client-submitted transport hints down to the
// known enum values, deduplicated and in canonical order. Unknown strings
// are dropped rather than rejected; transports are hints, not claims.
func NormalizeTransports(raw []string) []protocol.AuthenticatorTransport {
	var out []protocol.AuthenticatorTransport
	for _, known := range knownTransports {
		if slices.Contains(raw, string(known)) {
			out = append(out, known)
		}
	}
	return out
}
