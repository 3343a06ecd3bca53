package utils

import (
	cryptoRand "crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateHexToken generates a cryptographically secure random token in hex format.
func GenerateHexToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := cryptoRand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate hex token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
