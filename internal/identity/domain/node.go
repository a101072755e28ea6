package domain

import (
	"errors"
	"time"
)

// NodeKind distinguishes the two enrollable device roles.
type NodeKind string

const (
	NodeKindAgent       NodeKind = "agent"
	NodeKindCoordinator NodeKind = "coordinator"
)

var ErrInvalidNodeKind = errors.New("domain: invalid node kind")

// ParseNodeKind validates a client-submitted kind string.
func ParseNodeKind(s string) (NodeKind, error) {
	switch NodeKind(s) {
	case NodeKindAgent, NodeKindCoordinator:
		return NodeKind(s), nil
	}
	return "", ErrInvalidNodeKind
}

// NodeEnrollment is the device enrollment state machine row. Active is a
// derived value: it must always equal NodeApproved && EmailVerified and is
// recomputed inside every statement that changes either input, never set
// directly.
type NodeEnrollment struct {
	NodeID                string
	Kind                  NodeKind
	OwnerUserID           string
	OwnerEmail            string
	RegistrationTokenHash string
	EmailVerified         bool
	NodeApproved          bool
	Active                bool

	LastSeenAt      *time.Time
	LastIP          *string
	LastCountryCode *string
	LastVPNDetected *bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveFrom is the single derivation for the Active flag. The sqlite driver
// mirrors this expression inside its conditional updates so the recompute
// stays atomic with the flag change.
func ActiveFrom(approved, emailVerified bool) bool {
	return approved && emailVerified
}

// ValidationPatch carries the optional telemetry of a node validation ping.
// A nil field means "leave the stored value alone", which is distinct from
// setting a field to its zero value.
type ValidationPatch struct {
	SourceIP    *string
	CountryCode *string
	VPNDetected *bool
}
