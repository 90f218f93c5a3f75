package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/env"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/router"
)

// AdminSecretKey for admin API endpoints (/admin/*)
var AdminSecretKey string

// WebhookSecretKey guards the inbound webhook endpoint. Empty disables the
// check, for gateways that cannot send custom headers.
var WebhookSecretKey string

func init() {
	AdminSecretKey, _ = env.GetEnvString("ADMIN_SECRET_KEY")
	WebhookSecretKey, _ = env.GetEnvString("WEBHOOK_SECRET_KEY")
}

// AdminAuth validates the X-Admin-Secret header for admin endpoints
func AdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminSecret := c.Get("X-Admin-Secret")
		if adminSecret == "" {
			return router.ResponseUnauthorized(c, "Missing X-Admin-Secret header")
		}

		if AdminSecretKey == "" {
			return router.ResponseInternalError(c, "Admin secret key not configured")
		}

		if subtle.ConstantTimeCompare([]byte(adminSecret), []byte(AdminSecretKey)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}

		return c.Next()
	}
}

// WebhookAuth validates the X-Webhook-Secret header when a secret is
// configured. Unlike AdminAuth it is a no-op without configuration.
func WebhookAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if WebhookSecretKey == "" {
			return c.Next()
		}
		secret := c.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(WebhookSecretKey)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid webhook secret")
		}
		return c.Next()
	}
}
