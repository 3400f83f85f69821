package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default bcrypt cost factor
const DefaultBcryptCost = 12

// MaxSecretLength is the bcrypt input limit
const MaxSecretLength = 72

// HashSecret hashes a client secret with bcrypt, for use in configuration
func HashSecret(secret string, cost int) (string, error) {
	if len(secret) > MaxSecretLength {
		return "", fmt.Errorf("secret too long")
	}
	if cost < bcrypt.MinCost {
		cost = DefaultBcryptCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(bytes), nil
}

// VerifySecret verifies a secret against a hash
func VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
