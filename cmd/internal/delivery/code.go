package delivery

import (
	"crypto/rand"
	"math/big"
)

// Verification codes are 4-digit decimal strings in [1000, 9999]. They are a
// low-friction handoff proof between two people physically present at pickup,
// not a cryptographic secret.
const (
	codeMin  = 1000
	codeSpan = 9000
	codeLen  = 4
)

// NewCode draws a fresh verification code uniformly at random.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return big.NewInt(codeMin + n.Int64()).String(), nil
}

// ValidCodeFormat reports whether s is a well-formed 4-digit code.
// Comparison against the stored code is done elsewhere, as opaque strings.
func ValidCodeFormat(s string) bool {
	if len(s) != codeLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
