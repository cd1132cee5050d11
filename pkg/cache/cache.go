package cache

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/sunset"
)

// ProgressCache holds the last computed sunset progress snapshot.
// Get returns (nil, nil) on a miss.
type ProgressCache interface {
	Get(ctx context.Context) (*sunset.Progress, error)
	Set(ctx context.Context, p sunset.Progress, ttl time.Duration) error
	Delete(ctx context.Context) error
}
