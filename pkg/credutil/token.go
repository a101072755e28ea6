package credutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token size constants (bytes of entropy before encoding).
const (
	// TokenSize128 suits short-lived state values and CSRF tokens.
	TokenSize128 = 16
	// TokenSize256 suits session and registration tokens (recommended).
	TokenSize256 = 32
)

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// GenerateToken returns a cryptographically random token of size bytes,
// encoded as unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}
	buf, err := randomBytes(size)
	if err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the SHA-256 fingerprint of a raw token as
// unpadded base64url. Stores persist fingerprints, never raw tokens, so a
// leaked database cannot be replayed against the sessions it describes.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
