package repository

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/sunset"
	"github.com/amirasaad/treasury/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sunsetStateID = 1

type volumeRepository struct {
	db *gorm.DB
}

// NewVolumeRepository returns the GORM referral volume repository.
func NewVolumeRepository(db *gorm.DB) repository.VolumeRepository {
	return &volumeRepository{db: db}
}

func (r *volumeRepository) Record(ctx context.Context, e *sunset.VolumeEntry) error {
	m := ReferralVolume{
		ID:          e.ID,
		AffiliateID: e.AffiliateID,
		Tins:        e.Tins,
		RecordedAt:  e.RecordedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *volumeRepository) SumBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&ReferralVolume{}).
		Select("COALESCE(SUM(tins), 0)").
		Where("recorded_at >= ? AND recorded_at < ?", from, to).
		Scan(&total).Error
	return total, MapGormErrorToDomain(err)
}

type sunsetRepository struct {
	db *gorm.DB
}

// NewSunsetRepository returns the GORM sunset state repository.
func NewSunsetRepository(db *gorm.DB) repository.SunsetRepository {
	return &sunsetRepository{db: db}
}

func (r *sunsetRepository) Get(ctx context.Context) (*sunset.State, error) {
	var m SunsetState
	if err := r.db.WithContext(ctx).Where("id = ?", sunsetStateID).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return &sunset.State{
		Progress: sunset.Progress{
			MonthlyVolume: m.MonthlyVolume,
			Rolling3moAvg: m.RollingAvg,
			Threshold:     m.Threshold,
			Percentage:    m.Percentage,
			IsTriggered:   m.IsTriggered,
			TriggeredAt:   m.TriggeredAt,
			ComputedAt:    m.ComputedAt,
		},
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// SaveComputed upserts the figures. is_triggered and triggered_at are not in
// the update set, so an existing latch survives.
func (r *sunsetRepository) SaveComputed(ctx context.Context, p sunset.Progress) error {
	m := SunsetState{
		ID:            sunsetStateID,
		MonthlyVolume: p.MonthlyVolume,
		RollingAvg:    p.Rolling3moAvg,
		Threshold:     p.Threshold,
		Percentage:    p.Percentage,
		ComputedAt:    p.ComputedAt,
		UpdatedAt:     p.ComputedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"monthly_volume", "rolling_avg", "threshold", "percentage", "computed_at", "updated_at",
			}),
		}).Create(&m).Error
	})
}

func (r *sunsetRepository) Latch(ctx context.Context, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&SunsetState{}).
		Where("id = ? AND is_triggered = ?", sunsetStateID, false).
		Updates(map[string]any{"is_triggered": true, "triggered_at": at, "updated_at": at})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}
