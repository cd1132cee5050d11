package repository

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/domain/comp"
	"github.com/amirasaad/treasury/pkg/domain/sunset"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/google/uuid"
)

// CompRepository stores comps. Comps are never deleted.
type CompRepository interface {
	// Create inserts a comp. A duplicate milestone key returns domain.ErrAlreadyExists.
	Create(ctx context.Context, c *comp.Comp) error
	Get(ctx context.Context, id uuid.UUID) (*comp.Comp, error)
	MilestoneAwarded(ctx context.Context, key string) (bool, error)
	// Transition moves a comp between statuses and reports whether this call
	// won; a losing concurrent caller gets false.
	Transition(ctx context.Context, id uuid.UUID, from, to comp.Status, at time.Time) (bool, error)
	// Complete moves a pending comp to completed with its settlement details.
	Complete(ctx context.Context, id uuid.UUID, settlementRef string, match money.Amount, at time.Time) (bool, error)
	// Fail moves a pending comp to failed with the reason.
	Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	List(ctx context.Context, status *comp.Status) ([]comp.Comp, error)
	// ListPendingBefore returns pending comps last touched before the cutoff,
	// oldest first.
	ListPendingBefore(ctx context.Context, before time.Time) ([]comp.Comp, error)
}

// AffiliateRepository stores affiliates.
type AffiliateRepository interface {
	Create(ctx context.Context, a *affiliate.Affiliate) error
	Get(ctx context.Context, id uuid.UUID) (*affiliate.Affiliate, error)
	Update(ctx context.Context, a *affiliate.Affiliate) error
	List(ctx context.Context) ([]affiliate.Affiliate, error)
}

// MemberRepository stores members eligible for comps.
type MemberRepository interface {
	Upsert(ctx context.Context, m *affiliate.Member) error
	Get(ctx context.Context, userID string) (*affiliate.Member, error)
}

// VolumeRepository stores referral volume entries.
type VolumeRepository interface {
	Record(ctx context.Context, e *sunset.VolumeEntry) error
	// SumBetween totals tins with from <= recorded_at < to.
	SumBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// SunsetRepository stores the singleton sunset state.
type SunsetRepository interface {
	// Get returns the state or domain.ErrNotFound before the first check.
	Get(ctx context.Context) (*sunset.State, error)
	// SaveComputed stores the latest figures and never touches the latch.
	SaveComputed(ctx context.Context, p sunset.Progress) error
	// Latch sets is_triggered once; it reports whether this call set it.
	Latch(ctx context.Context, at time.Time) (bool, error)
}
