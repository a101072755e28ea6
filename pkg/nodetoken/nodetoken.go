// Package nodetoken mints and verifies the short-lived signed tokens an
// enrolled node presents to coordinators. Tokens are only minted for nodes
// that are active (approved and backed by a verified account); verification
// here is purely cryptographic and does not consult storage.
package nodetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by a node identity token.
type Claims struct {
	NodeKind    string `json:"node_kind"`
	OwnerUserID string `json:"owner_user_id"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("nodetoken: invalid token")
	ErrNoSigningKey = errors.New("nodetoken: signing key not configured")
)

// Minter signs node identity tokens with an HMAC key shared with the
// coordinator fleet.
type Minter struct {
	Key    []byte
	Issuer string
	TTL    time.Duration
}

// Mint returns a signed token for the node. The node id becomes the subject.
func (m *Minter) Mint(nodeID, nodeKind, ownerUserID string) (string, error) {
	if len(m.Key) == 0 {
		return "", ErrNoSigningKey
	}
	ttl := m.TTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	now := time.Now().UTC()
	claims := Claims{
		NodeKind:    nodeKind,
		OwnerUserID: ownerUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			Subject:   nodeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Key)
	if err != nil {
		return "", fmt.Errorf("sign node token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a node identity token.
func (m *Minter) Verify(token string) (Claims, error) {
	if len(m.Key) == 0 {
		return Claims{}, ErrNoSigningKey
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.Key, nil
	}, jwt.WithIssuer(m.Issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
