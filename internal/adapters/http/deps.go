package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/patrolscan/internal/adapters/postgres"
	"github.com/samirrijal/patrolscan/internal/adapters/valkey"
	"github.com/samirrijal/patrolscan/internal/core/ports"
	"github.com/samirrijal/patrolscan/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Scheduler *usecases.ScanScheduler
	Store     *usecases.DetectionStore
	Filters   *usecases.FilterService
	Logs      ports.LogSink

	// PatrolContext is handed to Scheduler.Start; classification calls run
	// under it. Nil detaches from the triggering request.
	PatrolContext context.Context

	NATS    *nats.Conn
	Archive *postgres.DB
	Cache   *valkey.Cache

	RateLimit int // requests per minute per IP, 0 disables
}
