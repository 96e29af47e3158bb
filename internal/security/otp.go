package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateOTPCode returns six random decimal digits from a CSPRNG,
// zero-padded.
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
