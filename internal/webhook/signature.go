package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Sign returns the sha256=<hex> HMAC of payload
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature against the HMAC of payload in constant time.
// The sha256= prefix is optional and hex case is ignored.
func Verify(secret string, payload []byte, signature string) bool {
	got := strings.ToLower(strings.TrimSpace(signature))
	got = strings.TrimPrefix(got, signaturePrefix)
	if got == "" {
		return false
	}

	expected := strings.TrimPrefix(Sign(secret, payload), signaturePrefix)
	return hmac.Equal([]byte(got), []byte(expected))
}
