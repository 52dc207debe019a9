package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/patrolscan/internal/adapters/nats"
	"github.com/samirrijal/patrolscan/internal/adapters/postgres"
	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/pkg/config"
	"github.com/samirrijal/patrolscan/internal/pkg/logging"
)

const durableName = "patrolscan-archiver"

// The archiver drains detection batches from JetStream into the archive
// database. It is the writer when archive.mode=stream.
func main() {
	cfg, err := config.Load("patrolscan-archiver")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Archive.DSN(), cfg.Archive.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	archive := postgres.NewDetectionArchive(db)

	// NATS
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeDetections(ctx, durableName, func(ctx context.Context, detections []domain.Detection) error {
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := archive.InsertBatch(writeCtx, detections); err != nil {
			slog.Error("archive batch failed", "count", len(detections), "error", err)
			return err
		}
		slog.Info("archived detections", "count", len(detections))
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe %s: %v", natsadapter.SubjectDetections, err)
	}

	slog.Info("archiver running", "subject", natsadapter.SubjectDetections, "durable", durableName)

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down archiver", "signal", sig.String())
}
