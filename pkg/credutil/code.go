package credutil

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// GenerateSixDigitCode returns a zero-padded numeric code in [000000,999999]
// drawn from crypto/rand. The modulo reduction over a 32-bit value makes
// codes below 2^32 mod 1e6 fractionally more likely; the bias is on the
// order of 2^-25 and accepted for email confirmation codes.
func GenerateSixDigitCode() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1000000
	return fmt.Sprintf("%06d", n), nil
}
