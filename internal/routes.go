package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "linkpulse/api/v1"
	"linkpulse/internal/http"
	"linkpulse/internal/http/middleware"
)

// publicCORSConfig is shared by the endpoints profile pages call from
// other origins.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountRoutes mounts all application routes using cartridge's route API
func MountRoutes(srv *cartridge.Server, svc *Services) {
	cfg := svc.Config

	// Rate limiting would interfere with tests and local runs.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 120/min per IP covers a visitor tapping through a whole profile.
	ingestRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	summaryRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(60),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	// Visitors arrive from any site, so Sec-Fetch-Site is not checked.
	redirectConfig := &cartridge.RouteConfig{
		CustomMiddleware:   []fiber.Handler{ingestRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	beaconConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CustomMiddleware:   []fiber.Handler{ingestRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// Owner API: called server-to-server with a bearer key.
	ownerConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			summaryRateLimiter,
			middleware.OwnerAuth(svc.DB, svc.Logger),
		},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	healthConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	publicHandlers := v1.NewHandlers(cfg, svc.Links, svc.Recorder, svc.Visitors)
	summaryHandlers := http.NewSummaryHandlers(svc.Engine)

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction, healthConfig)
	srv.Head("/_health", http.HealthIndexAction, healthConfig)

	// === REDIRECT ===
	srv.Get("/r/:linkId", publicHandlers.RedirectAction, redirectConfig)
	srv.Head("/r/:linkId", publicHandlers.RedirectAction, redirectConfig)
	srv.Get("/r", publicHandlers.RedirectAction, redirectConfig)

	// === PUBLIC API ROUTES ===
	srv.Post("/api/v1/clicks", publicHandlers.BeaconAction, beaconConfig)
	srv.Options("/api/v1/clicks", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, beaconConfig)

	// === OWNER API ROUTES ===
	srv.Post("/api/v1/links", publicHandlers.CreateShortLinkAction, ownerConfig)
	srv.Get("/api/v1/analytics/summary", summaryHandlers.AccountSummaryAction, ownerConfig)
	srv.Get("/api/v1/analytics/links/:linkId", summaryHandlers.LinkSummaryAction, ownerConfig)

	// === METRICS ===
	srv.App().Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
