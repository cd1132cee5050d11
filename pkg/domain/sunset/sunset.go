// Package sunset computes the programmatic shutdown trigger from rolling
// referral volume.
//
// Invariants:
//   - Months are UTC calendar months and only complete months count.
//   - Once triggered the latch never resets and TriggeredAt never moves.
package sunset

import (
	"fmt"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidThreshold is returned for a non-positive threshold.
var ErrInvalidThreshold = fmt.Errorf("%w: sunset threshold must be positive", domain.ErrInvalidInput)

// WindowMonths is the number of complete months averaged.
const WindowMonths = 3

// Month is a half-open UTC calendar month [Start, End).
type Month struct {
	Start time.Time
	End   time.Time
}

// CompleteMonths returns the WindowMonths most recent complete months before
// now, most recent first.
func CompleteMonths(now time.Time) []Month {
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]Month, WindowMonths)
	end := current
	for i := range months {
		start := end.AddDate(0, -1, 0)
		months[i] = Month{Start: start, End: end}
		end = start
	}
	return months
}

// Progress is the latest computed state of the trigger.
type Progress struct {
	MonthlyVolume int64           `json:"monthlyVolume"`
	Rolling3moAvg decimal.Decimal `json:"rolling3moAvg"`
	Threshold     int64           `json:"threshold"`
	Percentage    decimal.Decimal `json:"percentage"`
	IsTriggered   bool            `json:"isTriggered"`
	TriggeredAt   *time.Time      `json:"triggeredAt"`
	ComputedAt    time.Time       `json:"computedAt"`

	windowVolume int64
}

// Compute derives progress from monthly volumes, most recent month first.
// It never sets the latch; that belongs to the persisted state.
func Compute(volumes []int64, threshold int64, at time.Time) (Progress, error) {
	if threshold <= 0 {
		return Progress{}, fmt.Errorf("%w: got %d", ErrInvalidThreshold, threshold)
	}
	var sum int64
	for i := 0; i < WindowMonths && i < len(volumes); i++ {
		sum += volumes[i]
	}
	var latest int64
	if len(volumes) > 0 {
		latest = volumes[0]
	}
	avg := decimal.NewFromInt(sum).Div(decimal.NewFromInt(WindowMonths)).Round(2)
	pct := decimal.NewFromInt(sum).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(WindowMonths * threshold)).
		Round(2)
	return Progress{
		MonthlyVolume: latest,
		Rolling3moAvg: avg,
		Threshold:     threshold,
		Percentage:    pct,
		ComputedAt:    at,
		windowVolume:  sum,
	}, nil
}

// Reached reports whether the window volume meets WindowMonths x threshold.
// Percentage and Rolling3moAvg are rounded for display and never decide it.
// Only meaningful on a value returned by Compute.
func (p Progress) Reached() bool {
	return p.Threshold > 0 && p.windowVolume >= WindowMonths*p.Threshold
}

// State is the persisted latch plus the last computed figures.
type State struct {
	Progress
	UpdatedAt time.Time
}

// VolumeEntry is referral volume (tins) attributed to a point in time.
type VolumeEntry struct {
	ID          uuid.UUID
	AffiliateID *uuid.UUID
	Tins        int64
	RecordedAt  time.Time
}
