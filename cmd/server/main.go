package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirasaad/treasury/infra/initializer"
	"github.com/amirasaad/treasury/infra/scheduler"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/webapi"
	log "github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

// @title Treasury API
// @version 1.0.0
// @description Treasury pool ledger and affiliate payout pipeline
// @host localhost:3000
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	// Initialize all dependencies
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	logger := deps.Logger

	a, err := app.New(deps, cfg)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	if err := a.SyncPools(context.Background()); err != nil {
		return fmt.Errorf("failed to sync pools: %w", err)
	}

	sched, err := startScheduler(a, logger)
	if err != nil {
		return err
	}

	fiberApp := webapi.SetupApp(a)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Starting server",
		"env", cfg.Env,
		"address", addr,
		"scheme", cfg.Server.Scheme,
		"jobs", sched.Len(),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- fiberApp.Listen(addr) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		shutdown(fiberApp, sched, deps, logger)
		return err
	case s := <-sig:
		logger.Info("Shutting down", "signal", s.String())
	}
	shutdown(fiberApp, sched, deps, logger)
	return nil
}

func startScheduler(a *app.App, logger *slog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(logger, 5*time.Minute)
	for _, job := range a.Jobs() {
		if err := sched.Add(job.Name, job.Schedule, job.Run); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	sched.Start()
	return sched, nil
}

func shutdown(fiberApp *fiber.App, sched *scheduler.Scheduler, deps *app.Deps, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	sched.Stop(ctx)
	for _, c := range []any{deps.EventBus, deps.ProgressCache} {
		closer, ok := c.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("close failed", "error", err)
		}
	}
}
