package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/patrolscan/internal/pkg/metrics"
)

// NewApp returns a fiber app configured with the JSON error envelope.
func NewApp(cfg fiber.Config) *fiber.App {
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = errorHandler
	}
	return fiber.New(cfg)
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting per IP
	if deps.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        deps.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	// Security headers + API version. Everything served here is live state.
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Next()
	})

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Patrol control
	v1.Get("/patrol/status", StatusHandler(deps))
	v1.Post("/patrol/start", StartHandler(deps))
	v1.Post("/patrol/stop", StopHandler(deps))
	v1.Get("/logs", LogsHandler(deps))

	// Detections: 15s per-request timeout
	v1.Get("/detections", timeout.NewWithContext(ListDetectionsHandler(deps), 15*time.Second))
	v1.Get("/detections/geojson", timeout.NewWithContext(DetectionsGeoJSONHandler(deps), 15*time.Second))

	// Session filter
	v1.Get("/filters", GetFiltersHandler(deps))
	v1.Post("/filters/toggle", ToggleFilterHandler(deps))
	v1.Post("/filters/reset", ResetFiltersHandler(deps))
	v1.Get("/filters/results", timeout.NewWithContext(FilterResultsHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// WebSocket relay (needs NATS)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if deps.NATS == nil {
			return errUnavailable(c, "live relay requires nats")
		}
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if deps.NATS != nil {
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
}
