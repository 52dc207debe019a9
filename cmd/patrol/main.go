package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/patrolscan/internal/adapters/classifier"
	"github.com/samirrijal/patrolscan/internal/adapters/http"
	"github.com/samirrijal/patrolscan/internal/adapters/imagery"
	natsadapter "github.com/samirrijal/patrolscan/internal/adapters/nats"
	"github.com/samirrijal/patrolscan/internal/adapters/postgres"
	"github.com/samirrijal/patrolscan/internal/adapters/valkey"
	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/patrol"
	"github.com/samirrijal/patrolscan/internal/core/ports"
	"github.com/samirrijal/patrolscan/internal/core/usecases"
	"github.com/samirrijal/patrolscan/internal/pkg/backoff"
	"github.com/samirrijal/patrolscan/internal/pkg/config"
	"github.com/samirrijal/patrolscan/internal/pkg/logging"
	"github.com/samirrijal/patrolscan/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("patrolscan")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Patrol engine
	p := cfg.Patrol
	engine, err := patrol.NewEngine(domain.PatrolRoute{
		Start:          domain.LatLng{Lat: p.StartLat, Lng: p.StartLng},
		End:            domain.LatLng{Lat: p.EndLat, Lng: p.EndLng},
		ForwardHeading: p.ForwardHeading,
		SpeedKmh:       p.SpeedKmh,
		TickInterval:   p.TickInterval(),
	}, patrol.Options{
		FootprintHalfWidthKm: p.FootprintKm,
		Region: domain.Bounds{
			MinLat: p.RegionMinLat, MinLng: p.RegionMinLng,
			MaxLat: p.RegionMaxLat, MaxLng: p.RegionMaxLng,
		},
		DataRateBaseline: p.DataRateBaseline,
		DataRateJitter:   p.DataRateJitter,
	})
	if err != nil {
		log.Fatalf("patrol engine: %v", err)
	}
	slog.Info("patrol corridor ready", "steps_per_leg", engine.TotalSteps())

	// Imagery
	images := imagery.NewProvider(imagery.Config{
		BaseURL: cfg.Imagery.BaseURL,
		Width:   cfg.Imagery.Width,
		Height:  cfg.Imagery.Height,
		Format:  cfg.Imagery.Format,
		Timeout: time.Duration(cfg.Imagery.TimeoutSec) * time.Second,
	}, nil)

	// Classifier
	clf := buildClassifier(cfg, images)

	// Optional collaborators
	schedDeps := usecases.SchedulerDeps{
		Engine:     engine,
		Classifier: clf,
		Imagery:    images,
	}

	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			schedDeps.Publisher = pub
		}

		// Raw NATS connection for WebSocket relay
		natsConn, err = natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	var cache *valkey.Cache
	if cfg.Valkey.Enabled {
		cache, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
			cache = nil
		} else {
			defer cache.Close()
			schedDeps.Snapshots = cache
		}
	}

	var db *postgres.DB
	if cfg.Archive.Enabled {
		db, err = postgres.New(ctx, cfg.Archive.DSN(), cfg.Archive.MaxConns)
		if err != nil {
			slog.Warn("archive unavailable", "error", err)
			db = nil
		} else {
			defer db.Close()
			if cfg.Archive.Mode == "direct" {
				schedDeps.Archive = postgres.NewDetectionArchive(db)
			} else {
				slog.Info("archive writes delegated to the archiver", "subject", natsadapter.SubjectDetections)
			}
		}
	}

	// Use cases
	store := usecases.NewDetectionStore(time.Duration(cfg.Detections.HorizonSec) * time.Second)
	logs := usecases.NewLogBuffer(cfg.Detections.LogCapacity)
	filters := usecases.NewFilterService(store)
	schedDeps.Store = store
	schedDeps.Logs = logs

	sched, err := usecases.NewScanScheduler(schedDeps, usecases.SchedulerConfig{
		TickInterval:       p.TickInterval(),
		AnalysisPeriod:     p.AnalysisPeriod,
		ImageRefreshPeriod: p.ImageRefreshPeriod,
	})
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	deps := &http.Dependencies{
		Scheduler:     sched,
		Store:         store,
		Filters:       filters,
		Logs:          logs,
		PatrolContext: ctx,
		NATS:          natsConn,
		Archive:       db,
		Cache:         cache,
		RateLimit:     cfg.Server.RateLimit,
	}

	// Fiber
	app := http.NewApp(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "PatrolScan",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	if p.Autostart {
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("autostart: %v", err)
		}
	}

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("patrol server starting", "addr", addr, "classifier", cfg.Classifier.Mode)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, stopping patrol...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sched.Stop(shutdownCtx); err != nil && !errors.Is(err, usecases.ErrNotRunning) {
		slog.Error("stop patrol", "error", err)
	}

	// Cancelling the patrol context aborts retry waits of an in-flight scan.
	cancel()
	waited := make(chan struct{})
	go func() {
		sched.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		slog.Warn("classification still in flight at shutdown")
	}

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// buildClassifier returns the configured backend wrapped in the retry policy.
func buildClassifier(cfg *config.Config, images *imagery.Provider) ports.Classifier {
	c := cfg.Classifier

	var next ports.Classifier
	switch c.Mode {
	case "http":
		next = classifier.NewHTTPClassifier(classifier.HTTPConfig{
			Endpoint: c.Endpoint,
			APIKey:   c.APIKey,
			Model:    c.Model,
			Timeout:  time.Duration(c.TimeoutSec) * time.Second,
		}, images, nil)
	default:
		var land []domain.Ring
		if c.UseDefaultLand {
			land = classifier.DefaultLand
		}
		next = classifier.NewSynthetic(classifier.SyntheticConfig{
			EmptyProbability: c.EmptyChance,
			MaxPerScan:       c.MaxPerScan,
			Land:             land,
		})
	}

	policy := backoff.Default()
	policy.MaxAttempts = c.MaxAttempts
	policy.BaseDelay = time.Duration(c.BaseDelayMs) * time.Millisecond
	policy.MaxDelay = time.Duration(c.MaxDelayMs) * time.Millisecond
	return classifier.NewRetrying(next, policy)
}
