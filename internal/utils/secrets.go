package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateLocalSecrets generates the JWT verification secret and the payment
// merchant key for a local environment. The two are always distinct.
func GenerateLocalSecrets() (jwtSecret, merchantKey string, err error) {
	jwtSecret, err = GenerateSecret(32) // 256-bit
	if err != nil {
		return "", "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}

	merchantKey, err = GenerateSecret(24)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate merchant key: %w", err)
	}

	return jwtSecret, merchantKey, nil
}
