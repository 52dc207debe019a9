package http

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/usecases"
)

// StatusHandler returns the scheduler's current snapshot.
func StatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Scheduler.Snapshot())
	}
}

// StartHandler starts the patrol from the beginning of the corridor.
func StartHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := deps.PatrolContext
		if ctx == nil {
			ctx = context.WithoutCancel(c.UserContext())
		}

		if err := deps.Scheduler.Start(ctx); err != nil {
			if errors.Is(err, usecases.ErrAlreadyRunning) {
				return errConflict(c, err.Error())
			}
			return err
		}

		LoggerFromCtx(c.UserContext()).Info("patrol started via api")
		return c.Status(fiber.StatusAccepted).JSON(deps.Scheduler.Snapshot())
	}
}

// StopHandler stops the patrol. An in-flight analysis is left to finish and
// its result is discarded.
func StopHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Scheduler.Stop(c.UserContext()); err != nil {
			if errors.Is(err, usecases.ErrNotRunning) {
				return errConflict(c, err.Error())
			}
			return err
		}

		LoggerFromCtx(c.UserContext()).Info("patrol stopped via api")
		return c.JSON(deps.Scheduler.Snapshot())
	}
}

// LogsHandler returns the operator log, oldest first. Optional query params:
// severity (info|success|error) and limit (newest N entries).
func LogsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entries := deps.Logs.Entries()

		if sev := strings.ToLower(c.Query("severity")); sev != "" {
			switch domain.Severity(sev) {
			case domain.SeverityInfo, domain.SeveritySuccess, domain.SeverityError:
			default:
				return errBadRequest(c, "severity must be one of info, success, error")
			}
			filtered := make([]domain.LogEntry, 0, len(entries))
			for _, e := range entries {
				if e.Severity == domain.Severity(sev) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}

		return c.JSON(fiber.Map{
			"data":  entries,
			"count": len(entries),
		})
	}
}
