package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository returns the GORM payout batch repository.
func NewBatchRepository(db *gorm.DB) repository.BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, b *payout.Batch) error {
	m := fromBatch(b)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *batchRepository) Get(ctx context.Context, id uuid.UUID) (*payout.Batch, error) {
	var m PayoutBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	b := toBatch(m)
	return &b, nil
}

func (r *batchRepository) Latest(ctx context.Context) (*payout.Batch, error) {
	var m PayoutBatch
	if err := r.db.WithContext(ctx).Order("period_end DESC").Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	b := toBatch(m)
	return &b, nil
}

func (r *batchRepository) Save(ctx context.Context, b *payout.Batch, from payout.BatchStatus) error {
	res := r.db.WithContext(ctx).
		Model(&PayoutBatch{}).
		Where("id = ? AND status = ?", b.ID, string(from)).
		Updates(map[string]any{
			"status":          string(b.Status),
			"approved_by":     b.ApprovedBy,
			"executed_at":     b.ExecutedAt,
			"failure_reason":  b.FailureReason,
			"total_amount":    b.TotalAmount,
			"affiliate_count": b.AffiliateCount,
			"updated_at":      b.UpdatedAt,
		})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: batch %s is no longer %s", domain.ErrInvalidTransition, b.ID, from)
	}
	return nil
}

func (r *batchRepository) List(ctx context.Context, status *payout.BatchStatus) ([]payout.Batch, error) {
	q := r.db.WithContext(ctx).Order("period_start DESC")
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	var rows []PayoutBatch
	if err := q.Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]payout.Batch, len(rows))
	for i, m := range rows {
		out[i] = toBatch(m)
	}
	return out, nil
}

func fromBatch(b *payout.Batch) PayoutBatch {
	return PayoutBatch{
		ID:             b.ID,
		PeriodStart:    b.PeriodStart,
		PeriodEnd:      b.PeriodEnd,
		AffiliateCount: b.AffiliateCount,
		TotalAmount:    b.TotalAmount,
		Status:         string(b.Status),
		ApprovedBy:     b.ApprovedBy,
		ExecutedAt:     b.ExecutedAt,
		FailureReason:  b.FailureReason,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func toBatch(m PayoutBatch) payout.Batch {
	return payout.Batch{
		ID:             m.ID,
		PeriodStart:    m.PeriodStart,
		PeriodEnd:      m.PeriodEnd,
		AffiliateCount: m.AffiliateCount,
		TotalAmount:    m.TotalAmount,
		Status:         payout.BatchStatus(m.Status),
		ApprovedBy:     m.ApprovedBy,
		ExecutedAt:     m.ExecutedAt,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type payoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository returns the GORM affiliate payout repository.
func NewPayoutRepository(db *gorm.DB) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) CreateEarning(ctx context.Context, p *payout.Payout) error {
	m := fromPayout(p)
	m.BatchID = nil
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *payoutRepository) GetBySource(ctx context.Context, typ payout.Type, sourceRef string) (*payout.Payout, error) {
	var m AffiliatePayout
	err := r.db.WithContext(ctx).
		Where("payout_type = ? AND source_ref = ?", string(typ), sourceRef).
		Take(&m).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	p := toPayout(m)
	return &p, nil
}

func (r *payoutRepository) ListUnbatched(ctx context.Context, before time.Time) ([]payout.Payout, error) {
	var rows []AffiliatePayout
	err := r.db.WithContext(ctx).
		Where("batch_id IS NULL AND earned_at < ?", before).
		Order("earned_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toPayouts(rows), nil
}

func (r *payoutRepository) AssignBatch(ctx context.Context, batchID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&AffiliatePayout{}).
		Where("id IN ? AND batch_id IS NULL", ids).
		Updates(map[string]any{
			"batch_id":   batchID,
			"status":     string(payout.StatusPending),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, MapGormErrorToDomain(res.Error)
}

func (r *payoutRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]payout.Payout, error) {
	var rows []AffiliatePayout
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("affiliate_id").Order("earned_at").
		Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toPayouts(rows), nil
}

func (r *payoutRepository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]payout.Payout, error) {
	var rows []AffiliatePayout
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("earned_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return toPayouts(rows), nil
}

func (r *payoutRepository) Update(ctx context.Context, p *payout.Payout) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&AffiliatePayout{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"status":         string(p.Status),
				"settlement_ref": p.SettlementRef,
				"failure_reason": p.FailureReason,
				"updated_at":     p.UpdatedAt,
			}).Error
	})
}

func (r *payoutRepository) SetStatusByBatch(ctx context.Context, batchID uuid.UUID, status payout.Status) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&AffiliatePayout{}).
			Where("batch_id = ? AND status <> ?", batchID, string(payout.StatusPaid)).
			Updates(map[string]any{
				"status":         string(status),
				"failure_reason": "",
				"updated_at":     time.Now().UTC(),
			}).Error
	})
}

func fromPayout(p *payout.Payout) AffiliatePayout {
	return AffiliatePayout{
		ID:            p.ID,
		BatchID:       p.BatchID,
		AffiliateID:   p.AffiliateID,
		Amount:        p.Amount,
		PayoutType:    string(p.Type),
		Status:        string(p.Status),
		SettlementRef: p.SettlementRef,
		SourceRef:     p.SourceRef,
		FailureReason: p.FailureReason,
		EarnedAt:      p.EarnedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toPayout(m AffiliatePayout) payout.Payout {
	return payout.Payout{
		ID:            m.ID,
		BatchID:       m.BatchID,
		AffiliateID:   m.AffiliateID,
		Amount:        m.Amount,
		Type:          payout.Type(m.PayoutType),
		Status:        payout.Status(m.Status),
		SettlementRef: m.SettlementRef,
		SourceRef:     m.SourceRef,
		FailureReason: m.FailureReason,
		EarnedAt:      m.EarnedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toPayouts(rows []AffiliatePayout) []payout.Payout {
	out := make([]payout.Payout, len(rows))
	for i, m := range rows {
		out[i] = toPayout(m)
	}
	return out
}
