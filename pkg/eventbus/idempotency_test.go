package eventbus_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compKey(e events.Event) string {
	if req, ok := e.(events.CompSettlementRequested); ok {
		return req.CompID.String()
	}
	return ""
}

func TestWithIdempotency_SkipsProcessed(t *testing.T) {
	var calls int32
	h := eventbus.WithIdempotency(func(ctx context.Context, e events.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, eventbus.NewIdempotencyTracker(), compKey, "test", nil)

	evt := events.CompSettlementRequested{CompID: uuid.New(), Attempt: 1}
	require.NoError(t, h(context.Background(), evt))
	require.NoError(t, h(context.Background(), evt))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWithIdempotency_FailureAllowsRedelivery(t *testing.T) {
	var calls int32
	h := eventbus.WithIdempotency(func(ctx context.Context, e events.Event) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("boom")
		}
		return nil
	}, eventbus.NewIdempotencyTracker(), compKey, "test", nil)

	evt := events.CompSettlementRequested{CompID: uuid.New(), Attempt: 1}
	require.Error(t, h(context.Background(), evt))
	require.NoError(t, h(context.Background(), evt))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWithIdempotency_ConcurrentDeliveriesShareOneRun(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	h := eventbus.WithIdempotency(func(ctx context.Context, e events.Event) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}, eventbus.NewIdempotencyTracker(), compKey, "test", nil)

	evt := events.CompSettlementRequested{CompID: uuid.New(), Attempt: 1}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h(context.Background(), evt))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
