package http

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// AccessLogMiddleware logs HTTP requests with structured slog output.
// Status polling is logged at debug level to keep the log readable.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		status := c.Response().StatusCode()
		latency := time.Since(start)

		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("latency", latency.String()),
			slog.Int("bytes_out", len(c.Response().Body())),
			slog.String("request_id", RequestIDFromCtx(c.UserContext())),
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case method == fiber.MethodGet && (path == "/v1/patrol/status" || path == "/v1/health" || path == "/metrics"):
			level = slog.LevelDebug
		}

		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code < 500 {
				level = slog.LevelWarn
			} else {
				level = slog.LevelError
			}
		}

		slog.LogAttrs(c.UserContext(), level, fmt.Sprintf("%s %s", method, path), attrs...)

		return err
	}
}
