package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	referenceLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	referenceDigits  = "0123456789"
)

// GenerateBookingReference returns a code shaped like ABC123XYZ:
// three letters, three digits, three letters
func GenerateBookingReference() (string, error) {
	buf := make([]byte, 0, 9)
	for _, alphabet := range []string{referenceLetters, referenceDigits, referenceLetters} {
		for i := 0; i < 3; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return "", fmt.Errorf("failed to generate booking reference: %w", err)
			}
			buf = append(buf, alphabet[n.Int64()])
		}
	}
	return string(buf), nil
}

// IsBookingReference checks the ABC123XYZ shape
func IsBookingReference(s string) bool {
	if len(s) != 9 {
		return false
	}
	for i := 0; i < 9; i++ {
		c := s[i]
		if i >= 3 && i < 6 {
			if c < '0' || c > '9' {
				return false
			}
			continue
		}
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
