package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// RedisEventBusConfig tunes the Redis Streams bus.
type RedisEventBusConfig struct {
	Prefix       string
	Block        time.Duration
	ReadCount    int64
	ErrorBackoff time.Duration
}

// DefaultRedisEventBusConfig returns defaults suitable for one consumer per
// process.
func DefaultRedisEventBusConfig() *RedisEventBusConfig {
	return &RedisEventBusConfig{
		Prefix:       "treasury",
		Block:        5 * time.Second,
		ReadCount:    10,
		ErrorBackoff: time.Second,
	}
}

// RedisEventBus publishes each event type to its own stream and consumes it
// through a consumer group, so a message is handled by exactly one process.
// Messages whose handler fails are copied to the type's DLQ stream.
type RedisEventBus struct {
	client   *redis.Client
	config   *RedisEventBusConfig
	consumer string
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis creates a new Redis-backed event bus.
func NewWithRedis(url string, logger *slog.Logger, config *RedisEventBusConfig) (*RedisEventBus, error) {
	if url == "" {
		return nil, fmt.Errorf("redis event bus: url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}
	return NewWithRedisClient(redis.NewClient(opt), logger, config)
}

// NewWithRedisClient wraps an existing client.
func NewWithRedisClient(client *redis.Client, logger *slog.Logger, config *RedisEventBusConfig) (*RedisEventBus, error) {
	if config == nil {
		config = DefaultRedisEventBusConfig()
	}
	if config.Prefix == "" {
		config.Prefix = "treasury"
	}
	if config.Block <= 0 {
		config.Block = 5 * time.Second
	}
	if config.ReadCount <= 0 {
		config.ReadCount = 10
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}

	host, _ := os.Hostname()
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:   client,
		config:   config,
		consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
		logger:   logger.With("bus", "redis"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Emit publishes an event to its stream.
func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	eventType := events.EventType(event.Type())
	payload, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("redis event bus: %w", err)
	}
	stream := streamNameFor(b.config.Prefix, eventType)
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"event": string(payload)},
	}).Err(); err != nil {
		b.logger.Error("failed to emit event", "error", err, "type", eventType, "stream", stream)
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", eventType, "stream", stream)
	return nil
}

// Register creates the consumer group for the event type and starts a read
// loop calling handler for each message.
func (b *RedisEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	stream := streamNameFor(b.config.Prefix, eventType)
	group := groupNameFor(b.config.Prefix, eventType)
	if err := b.client.XGroupCreateMkStream(b.ctx, stream, group, "0").Err(); err != nil &&
		!isBusyGroup(err) {
		b.logger.Error("failed to create consumer group", "error", err, "stream", stream)
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consumeLoop(eventType, stream, group, handler)
	}()
	b.logger.Info("handler registered", "event_type", eventType, "stream", stream, "consumer", b.consumer)
}

func (b *RedisEventBus) consumeLoop(eventType events.EventType, stream, group string, handler eventbus.HandlerFunc) {
	for {
		if b.ctx.Err() != nil {
			return
		}
		res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    b.config.ReadCount,
			Block:    b.config.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("error reading from stream", "error", err, "stream", stream)
			time.Sleep(b.config.ErrorBackoff)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				b.handleMessage(eventType, stream, group, msg, handler)
			}
		}
	}
}

func (b *RedisEventBus) handleMessage(
	eventType events.EventType,
	stream, group string,
	msg redis.XMessage,
	handler eventbus.HandlerFunc,
) {
	defer func() {
		if err := b.client.XAck(b.ctx, stream, group, msg.ID).Err(); err != nil {
			b.logger.Error("failed to acknowledge message", "error", err, "msg_id", msg.ID)
		}
	}()

	raw, ok := msg.Values["event"].(string)
	if !ok {
		b.logger.Error("message without event field", "msg_id", msg.ID, "stream", stream)
		return
	}
	_, evt, err := decodeEnvelope([]byte(raw))
	if err != nil {
		b.logger.Error("failed to decode event", "error", err, "msg_id", msg.ID)
		b.pushToDLQ(eventType, msg.Values)
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("handler panic recovered", "panic", r, "event_type", eventType)
				b.pushToDLQ(eventType, msg.Values)
			}
		}()
		if err := handler(b.ctx, evt); err != nil {
			b.logger.Error("handler error", "error", err, "event_type", eventType, "msg_id", msg.ID)
			b.pushToDLQ(eventType, msg.Values)
		}
	}()
}

func (b *RedisEventBus) pushToDLQ(eventType events.EventType, values map[string]any) {
	dlq := dlqStreamName(b.config.Prefix, eventType)
	if err := b.client.XAdd(b.ctx, &redis.XAddArgs{Stream: dlq, Values: values}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "error", err, "stream", dlq)
		return
	}
	b.logger.Warn("event pushed to DLQ", "stream", dlq)
}

// Close stops the consumers and closes the client.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
