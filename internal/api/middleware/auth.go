package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

// LocalTriggerAuthenticated marks requests that presented the trigger token
const LocalTriggerAuthenticated = "trigger_authenticated"

// Auth protects the operator endpoints with the bearer trigger token.
// Only the SHA-256 of the token is configured; see cmd/genkey.
func Auth(tokenHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return domain.ErrUnauthorized
		}

		if !domain.TokenMatches(token, tokenHash) {
			return domain.ErrUnauthorized
		}

		c.Locals(LocalTriggerAuthenticated, true)
		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
