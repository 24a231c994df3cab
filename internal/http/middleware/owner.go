package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/cache"
	"gorm.io/gorm"

	"linkpulse/internal/owners"
)

// OwnerIDKey is the Locals key the authenticated owner id is stored under.
const OwnerIDKey = "owner_id"

// ownerCacheTTL bounds how long a revoked key keeps working.
const ownerCacheTTL = 5 * time.Minute

// OwnerAuth validates the bearer API key and stores the owner id in Locals.
// Expects: Authorization: Bearer <api_key>
func OwnerAuth(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	keyOwners := cache.NewCache[string, string](logger, ownerCacheTTL, func(digest string) (string, error) {
		return owners.OwnerForDigest(context.Background(), db, digest)
	})

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header format. Expected: Bearer <api_key>",
			})
		}

		providedKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if providedKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key is empty",
			})
		}

		ownerID, err := keyOwners.Get(owners.Digest(providedKey))
		if err != nil || ownerID == "" {
			if err != nil && !errors.Is(err, owners.ErrUnknownKey) {
				logger.Error("Failed to resolve API key", slog.Any("error", err))
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		c.Locals(OwnerIDKey, ownerID)
		return c.Next()
	}
}
