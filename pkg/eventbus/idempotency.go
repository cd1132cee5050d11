package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/amirasaad/treasury/pkg/domain/events"
	"golang.org/x/sync/singleflight"
)

// KeyExtractor extracts an idempotency key from an event
type KeyExtractor func(events.Event) string

// IdempotencyTracker tracks processed events by key
type IdempotencyTracker struct {
	processed sync.Map
	inflight  singleflight.Group
}

// NewIdempotencyTracker creates a new idempotency tracker
func NewIdempotencyTracker() *IdempotencyTracker {
	return &IdempotencyTracker{}
}

// Processed reports whether key completed successfully before.
func (t *IdempotencyTracker) Processed(key string) bool {
	_, ok := t.processed.Load(key)
	return ok
}

// WithIdempotency wraps a handler so each key is handled at most once
// successfully, and concurrent deliveries of the same key share one run.
// A failed run leaves the key unmarked so redelivery can try again.
func WithIdempotency(
	handler HandlerFunc,
	tracker *IdempotencyTracker,
	keyExtractor KeyExtractor,
	handlerName string,
	logger *slog.Logger,
) HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e events.Event) error {
		key := keyExtractor(e)
		if key == "" {
			return handler(ctx, e)
		}

		log := logger.With(
			"handler", handlerName,
			"event_type", e.Type(),
			"idempotency_key", key,
		)

		if tracker.Processed(key) {
			log.Info("🔁 [SKIP] Event already processed")
			return nil
		}

		_, err, shared := tracker.inflight.Do(key, func() (any, error) {
			if tracker.Processed(key) {
				return nil, nil
			}
			if err := handler(ctx, e); err != nil {
				return nil, err
			}
			tracker.processed.Store(key, struct{}{})
			return nil, nil
		})
		if shared {
			log.Debug("joined in-flight handler run")
		}
		return err
	}
}
