// Package credutil holds the stateless credential helpers the identity
// services depend on: password hashing, token fingerprints, one-time codes,
// wallet secret references and passkey payload normalization.
//
// Nothing in here touches storage; every function is deterministic for a
// given input except the ones that draw fresh randomness.
package credutil

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. Key length is fixed at 64 bytes; verification derives
// with the stored hash length so parameter bumps stay verifiable.
const (
	scryptN       = 16384
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 64
	scryptSaltLen = 16
)

// HashPassword derives a scrypt hash with a fresh random salt and returns it
// encoded as "scrypt$<saltHex>$<keyHex>". Two calls with the same password
// produce different encodings.
func HashPassword(password string) (string, error) {
	salt, err := randomBytes(scryptSaltLen)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	return fmt.Sprintf("scrypt$%s$%s", hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// VerifyPassword checks a plaintext password against an encoded hash.
// It fails closed: malformed encodings, unknown algorithm tags and missing
// parts all return false rather than an error.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "scrypt" {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	expected, err := hex.DecodeString(parts[2])
	if err != nil || len(expected) == 0 {
		return false
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(expected))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// SecureCompare reports whether a and b are equal. A length mismatch returns
// false immediately (length may leak); equal-length comparison runs in
// constant time.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
