package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// Environment constants
const (
	EnvTest = "test"
	EnvLive = "live"
)

const (
	tokenPrefix = "whp"
	tokenLength = 32
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var validEnvironments = map[string]bool{
	EnvTest: true,
	EnvLive: true,
}

// GenerateTriggerToken creates a bearer token for the processing endpoint.
// Returns: (plainToken, hash)
// Format: whp_<env>_<random32>
func GenerateTriggerToken(env string) (string, string, error) {
	if !validEnvironments[env] {
		return "", "", errors.New("invalid environment: must be 'test' or 'live'")
	}

	randomPart, err := generateSecureRandomString(tokenLength)
	if err != nil {
		return "", "", err
	}

	plain := tokenPrefix + "_" + env + "_" + randomPart
	return plain, HashToken(plain), nil
}

// HashToken returns the hex SHA-256 of a token
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenMatches compares a presented token against a stored hash in constant time
func TokenMatches(token, expectedHash string) bool {
	if token == "" || expectedHash == "" {
		return false
	}
	got := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(expectedHash))) == 1
}

// IsValidTokenFormat checks the whp_<env>_<random32> shape
func IsValidTokenFormat(token string) bool {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 || parts[0] != tokenPrefix || !validEnvironments[parts[1]] {
		return false
	}
	if len(parts[2]) != tokenLength {
		return false
	}
	for _, char := range parts[2] {
		if !strings.ContainsRune(base62Chars, char) {
			return false
		}
	}
	return true
}

func generateSecureRandomString(length int) (string, error) {
	result := make([]byte, length)
	base62Len := big.NewInt(int64(len(base62Chars)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", err
		}
		result[i] = base62Chars[num.Int64()]
	}

	return string(result), nil
}
