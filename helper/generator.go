package helper

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
	uuid "github.com/hashicorp/go-uuid"
)

// tokenIDLength base62 characters carry just over 128 random bits.
const tokenIDLength = 22

// GenerateSessionID returns 128 random bits, base64url encoded without padding.
func GenerateSessionID() (string, error) {
	b, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateTokenID returns a random base62 token id.
func GenerateTokenID() (string, error) {
	id, err := base62.Random(tokenIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return id, nil
}

// GenerateTraceID returns 64 random bits as 16 hex characters.
func GenerateTraceID() string {
	b, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
