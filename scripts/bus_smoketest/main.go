// Command bus_smoketest publishes a ProceedsAllocated event through a
// durable event bus and waits for it to come back through a consumer.
//
// Usage:
//
//	DRIVER=kafka BROKERS=localhost:9092 go run ./scripts/bus_smoketest
//	DRIVER=redis REDIS_URL=redis://localhost:6379/0 go run ./scripts/bus_smoketest
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/google/uuid"
)

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func openBus(logger *slog.Logger) (eventbus.Bus, error) {
	switch driver := envOr("DRIVER", "kafka"); driver {
	case "kafka":
		return infraeventbus.NewWithKafka(strings.Split(envOr("BROKERS", "localhost:9092"), ","), logger,
			&infraeventbus.KafkaEventBusConfig{
				GroupID:     envOr("GROUP_ID", "treasury-smoketest"),
				TopicPrefix: envOr("TOPIC_PREFIX", "treasury-smoketest"),
			})
	case "redis":
		cfg := infraeventbus.DefaultRedisEventBusConfig()
		cfg.Prefix = envOr("TOPIC_PREFIX", "treasury-smoketest")
		return infraeventbus.NewWithRedis(envOr("REDIS_URL", "redis://localhost:6379/0"), logger, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// RunSmokeTest round-trips one event and reports whether it was delivered.
func RunSmokeTest(logger *slog.Logger) error {
	bus, err := openBus(logger)
	if err != nil {
		return err
	}
	if c, ok := bus.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	ref := "smoketest-" + uuid.NewString()
	got := make(chan string, 1)
	bus.Register(events.EventTypeProceedsAllocated, func(_ context.Context, e events.Event) error {
		switch v := e.(type) {
		case *events.ProceedsAllocated:
			if v.Ref == ref {
				got <- v.Ref
			}
		case events.ProceedsAllocated:
			if v.Ref == ref {
				got <- v.Ref
			}
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bus.Emit(ctx, events.ProceedsAllocated{
		Ref:     ref,
		Gross:   100_000,
		Credits: map[string]int64{"consumer": 50_000, "affiliate": 5_000, "wholesale": 5_000},
	}); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	logger.Info("produced", "ref", ref)

	select {
	case r := <-got:
		logger.Info("consumed", "ref", r)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event %s not delivered: %w", ref, ctx.Err())
	}
}

// main runs the smoke test and exits non-zero on failure.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := RunSmokeTest(logger); err != nil {
		logger.Error("bus smoke test failed", "error", err)
		os.Exit(1)
	}
	logger.Info("bus smoke test passed")
}
