package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// referenceAlphabet drops 0/O/1/I/L so references survive being read aloud.
const (
	referencePrefix   = "KD-"
	referenceAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	referenceLength   = 10
)

// newReference mints a short human-quotable order code. Uniqueness is
// enforced by the database constraint; at 31^10 codes a collision on insert
// is vanishingly rare and surfaces as a retryable error.
func newReference() (string, error) {
	buf := make([]byte, referenceLength)
	max := big.NewInt(int64(len(referenceAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating reference: %w", err)
		}
		buf[i] = referenceAlphabet[n.Int64()]
	}
	return referencePrefix + string(buf), nil
}
