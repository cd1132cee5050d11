package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKafkaBus(t *testing.T, cfg *KafkaEventBusConfig) *KafkaEventBus {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &KafkaEventBus{ctx: ctx, cancel: cancel, config: cfg.withDefaults(), logger: discardLogger()}
}

func TestKafkaConfigDefaults(t *testing.T) {
	cfg := (&KafkaEventBusConfig{GroupID: "ops", TopicPrefix: " "}).withDefaults()
	assert.Equal(t, "ops", cfg.GroupID)
	assert.Equal(t, "treasury", cfg.TopicPrefix)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryBackoff)

	var nilCfg *KafkaEventBusConfig
	assert.Equal(t, DefaultKafkaEventBusConfig(), nilCfg.withDefaults())
}

func TestKafkaRunWithRetry(t *testing.T) {
	bus := newTestKafkaBus(t, &KafkaEventBusConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond})
	evt := events.SunsetTriggered{TriggeredAt: time.Now(), Percentage: "100.00"}

	calls := 0
	err := bus.runWithRetry(func(ctx context.Context, e events.Event) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, evt)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = bus.runWithRetry(func(ctx context.Context, e events.Event) error {
		calls++
		return errors.New("permanent")
	}, evt)
	assert.EqualError(t, err, "permanent")
	assert.Equal(t, 3, calls)
}

func TestKafkaRunWithRetryStopsOnClose(t *testing.T) {
	bus := newTestKafkaBus(t, &KafkaEventBusConfig{MaxAttempts: 5, RetryBackoff: time.Hour})
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.cancel()
	}()
	err := bus.runWithRetry(func(ctx context.Context, e events.Event) error {
		calls++
		return errors.New("down")
	}, events.SunsetTriggered{})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, bus.sleep(time.Millisecond))
}
