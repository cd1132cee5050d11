// Package sunset watches rolling referral volume and latches the program
// sunset the first time the three-month average reaches the threshold.
package sunset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/treasury/pkg/cache"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/domain/sunset"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/amirasaad/treasury/pkg/observability"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/google/uuid"
)

// Monitor computes sunset progress and owns the trigger latch.
type Monitor struct {
	uow       repository.UnitOfWork
	cache     cache.ProgressCache
	bus       eventbus.Bus
	threshold int64
	ttl       time.Duration
	logger    *slog.Logger
	metrics   observability.Recorder
	now       func() time.Time

	mu sync.Mutex
}

// New creates a Monitor. cache, bus and metrics may be nil.
func New(
	uow repository.UnitOfWork,
	progressCache cache.ProgressCache,
	bus eventbus.Bus,
	threshold int64,
	ttl time.Duration,
	logger *slog.Logger,
	metrics observability.Recorder,
) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Monitor{
		uow:       uow,
		cache:     progressCache,
		bus:       bus,
		threshold: threshold,
		ttl:       ttl,
		logger:    logger.With("service", "sunset"),
		metrics:   observability.OrNop(metrics),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// RecordVolume ingests referral volume. A zero at means now.
func (m *Monitor) RecordVolume(ctx context.Context, affiliateID *uuid.UUID, tins int64, at time.Time) (*sunset.VolumeEntry, error) {
	if tins <= 0 {
		return nil, fmt.Errorf("%w: tins must be positive, got %d", domain.ErrInvalidInput, tins)
	}
	if at.IsZero() {
		at = m.now()
	}
	e := &sunset.VolumeEntry{ID: uuid.New(), AffiliateID: affiliateID, Tins: tins, RecordedAt: at.UTC()}
	repo, err := m.uow.VolumeRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Record(ctx, e); err != nil {
		return nil, err
	}
	m.logger.Debug("volume recorded", "tins", tins, "recorded_at", e.RecordedAt)
	return e, nil
}

// CheckSunset recomputes progress over the three most recent complete UTC
// months. The first time the percentage reaches 100 the latch is set and
// SunsetTriggered is emitted; later calls never reset it.
func (m *Monitor) CheckSunset(ctx context.Context) (*sunset.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	volRepo, err := m.uow.VolumeRepository()
	if err != nil {
		return nil, err
	}
	months := sunset.CompleteMonths(now)
	volumes := make([]int64, len(months))
	for i, month := range months {
		if volumes[i], err = volRepo.SumBetween(ctx, month.Start, month.End); err != nil {
			return nil, err
		}
	}
	p, err := sunset.Compute(volumes, m.threshold, now)
	if err != nil {
		return nil, err
	}

	var latched bool
	var state *sunset.State
	err = m.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.SunsetRepository()
		if err != nil {
			return err
		}
		if err := repo.SaveComputed(ctx, p); err != nil {
			return err
		}
		if p.Reached() {
			if latched, err = repo.Latch(ctx, now); err != nil {
				return err
			}
		}
		state, err = repo.Get(ctx)
		return err
	})
	if err != nil {
		m.logger.Error("CheckSunset failed", "error", err)
		return nil, err
	}
	p.IsTriggered = state.IsTriggered
	p.TriggeredAt = state.TriggeredAt

	m.setCache(ctx, p)
	pct, _ := p.Percentage.Float64()
	m.metrics.Sunset(pct, p.IsTriggered)

	if latched {
		m.logger.Warn("sunset triggered", "percentage", p.Percentage.StringFixed(2),
			"rolling_avg", p.Rolling3moAvg.String(), "threshold", p.Threshold)
		if m.bus != nil {
			if err := m.bus.Emit(ctx, events.SunsetTriggered{
				TriggeredAt: *p.TriggeredAt,
				Percentage:  p.Percentage.StringFixed(2),
			}); err != nil {
				m.logger.Warn("failed to emit SunsetTriggered", "error", err)
			}
		}
	} else {
		m.logger.Info("sunset progress computed", "percentage", p.Percentage.StringFixed(2),
			"monthly_volume", p.MonthlyVolume, "triggered", p.IsTriggered)
	}
	return &p, nil
}

// Progress returns the last computed snapshot, from the cache when
// possible. With no snapshot yet it computes one.
func (m *Monitor) Progress(ctx context.Context) (*sunset.Progress, error) {
	if m.cache != nil {
		p, err := m.cache.Get(ctx)
		if err != nil {
			m.logger.Warn("progress cache read failed", "error", err)
		} else if p != nil {
			return p, nil
		}
	}
	repo, err := m.uow.SunsetRepository()
	if err != nil {
		return nil, err
	}
	state, err := repo.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return m.CheckSunset(ctx)
	}
	if err != nil {
		return nil, err
	}
	p := state.Progress
	m.setCache(ctx, p)
	return &p, nil
}

// Triggered reports the persisted latch.
func (m *Monitor) Triggered(ctx context.Context) (bool, error) {
	repo, err := m.uow.SunsetRepository()
	if err != nil {
		return false, err
	}
	state, err := repo.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state.IsTriggered, nil
}

func (m *Monitor) setCache(ctx context.Context, p sunset.Progress) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, p, m.ttl); err != nil {
		m.logger.Warn("progress cache write failed", "error", err)
	}
}
