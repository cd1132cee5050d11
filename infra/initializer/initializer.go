package initializer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/treasury/infra"
	infracache "github.com/amirasaad/treasury/infra/cache"
	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	infraobs "github.com/amirasaad/treasury/infra/observability"
	infraprovider "github.com/amirasaad/treasury/infra/provider"
	infrarepository "github.com/amirasaad/treasury/infra/repository"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/cache"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/eventbus"
)

// InitializeDependencies initializes all the application dependencies
func InitializeDependencies(cfg *config.App) (
	deps *app.Deps,
	err error,
) {
	deps = &app.Deps{}
	logger := setupLogger(cfg.Log)
	deps.Logger = logger

	if cfg.Program == nil {
		if cfg.Program, err = config.LoadProgram(cfg.ProgramFile); err != nil {
			return nil, fmt.Errorf("failed to load program: %w", err)
		}
	}

	// Initialize database
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := infra.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	// Initialize unit of work
	deps.Uow = infrarepository.NewUoW(db)

	deps.EventBus, err = initEventBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps.ProgressCache = initProgressCache(cfg, logger)
	deps.Metrics = infraobs.Treasury()

	if cfg.Rail != nil && cfg.Rail.URL != "" {
		deps.Rail = infraprovider.NewHTTPRail(cfg.Rail, logger)
	} else {
		logger.Warn("No settlement rail URL configured, using the in-memory rail")
		deps.Rail = infraprovider.NewMockRail()
	}

	if cfg.Bank != nil && cfg.Bank.URL != "" {
		deps.BankSync = infraprovider.NewHTTPBankSync(cfg.Bank, logger)
	} else {
		deps.BankSync = infraprovider.NewMockBankSync()
	}

	return
}

// initEventBus picks the bus from EVENT_BUS_DRIVER. An explicit durable
// driver must be configured; if it is configured but unreachable the process
// keeps running on the in-process async bus.
func initEventBus(cfg *config.App, logger *slog.Logger) (eventbus.Bus, error) {
	busCfg := cfg.EventBus
	if busCfg == nil {
		busCfg = &config.EventBus{}
	}
	driver := strings.ToLower(strings.TrimSpace(busCfg.Driver))

	switch driver {
	case "", "memory-async":
		logger.Info("Using in-memory async event bus")
		return infraeventbus.NewWithMemoryAsync(logger), nil
	case "memory":
		logger.Info("Using in-memory event bus")
		return infraeventbus.NewWithMemory(logger), nil
	case "redis":
		url := busCfg.RedisURL
		if url == "" && cfg.Redis != nil {
			url = cfg.Redis.URL
		}
		if url == "" {
			return nil, fmt.Errorf("event bus driver redis requires EVENT_BUS_REDIS_URL or REDIS_URL")
		}
		redisCfg := infraeventbus.DefaultRedisEventBusConfig()
		if busCfg.TopicPrefix != "" {
			redisCfg.Prefix = busCfg.TopicPrefix
		}
		bus, err := infraeventbus.NewWithRedis(url, logger, redisCfg)
		if err != nil {
			logger.Warn("Redis event bus unavailable, falling back to in-memory async", "error", err)
			return infraeventbus.NewWithMemoryAsync(logger), nil
		}
		return bus, nil
	case "kafka":
		brokers := make([]string, 0, len(busCfg.KafkaBrokers))
		for _, b := range busCfg.KafkaBrokers {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		if len(brokers) == 0 {
			return nil, fmt.Errorf("event bus driver kafka requires EVENT_BUS_KAFKA_BROKERS")
		}
		bus, err := infraeventbus.NewWithKafka(brokers, logger, &infraeventbus.KafkaEventBusConfig{
			GroupID:     busCfg.KafkaGroupID,
			TopicPrefix: busCfg.TopicPrefix,
		})
		if err != nil {
			logger.Warn("Kafka event bus unavailable, falling back to in-memory async", "error", err)
			return infraeventbus.NewWithMemoryAsync(logger), nil
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus driver %q", busCfg.Driver)
	}
}

func initProgressCache(cfg *config.App, logger *slog.Logger) cache.ProgressCache {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return infracache.NewMemoryProgressCache()
	}
	c, err := infracache.NewRedisProgressCache(cfg.Redis.URL, cfg.Redis.KeyPrefix, logger)
	if err != nil {
		logger.Warn("Redis progress cache unavailable, using memory", "error", err)
		return infracache.NewMemoryProgressCache()
	}
	timeout := cfg.Redis.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := c.Get(ctx); err != nil {
		logger.Warn("Redis progress cache unreachable, using memory", "error", err)
		return infracache.NewMemoryProgressCache()
	}
	return c
}
