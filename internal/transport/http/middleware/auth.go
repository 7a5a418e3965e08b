package middleware

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hostpanel/backend/internal/config"
)

// AuthFailureRecorder receives rejected admin requests so the brute-force
// evaluator can see them.
type AuthFailureRecorder interface {
	RecordAuthFailure(source string, at time.Time)
}

// AdminAuth accepts the admin key in X-Admin-Token or as a bearer token.
// An empty key disables the check. recorder may be nil.
func AdminAuth(cfg *config.Config, recorder AuthFailureRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := cfg.Auth.AdminAPIKey
		if apiKey == "" {
			return c.Next()
		}

		headerToken := c.Get("X-Admin-Token")
		if headerToken == "" {
			const prefix = "Bearer "
			if auth := c.Get("Authorization"); strings.HasPrefix(auth, prefix) {
				headerToken = auth[len(prefix):]
			}
		}

		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(apiKey)) != 1 {
			if recorder != nil {
				recorder.RecordAuthFailure(c.IP(), time.Now())
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		return c.Next()
	}
}
