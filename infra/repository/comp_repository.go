package repository

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/comp"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type compRepository struct {
	db *gorm.DB
}

// NewCompRepository returns the GORM comp repository.
func NewCompRepository(db *gorm.DB) repository.CompRepository {
	return &compRepository{db: db}
}

func (r *compRepository) Create(ctx context.Context, c *comp.Comp) error {
	m := fromComp(c)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *compRepository) Get(ctx context.Context, id uuid.UUID) (*comp.Comp, error) {
	var m Comp
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	c := toComp(m)
	return &c, nil
}

func (r *compRepository) MilestoneAwarded(ctx context.Context, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Comp{}).Where("milestone_key = ?", key).Count(&count).Error
	return count > 0, MapGormErrorToDomain(err)
}

func (r *compRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to comp.Status,
	at time.Time,
) (bool, error) {
	updates := map[string]any{"status": string(to), "updated_at": at}
	if from == comp.StatusFailed && to == comp.StatusPending {
		updates["attempts"] = gorm.Expr("attempts + 1")
		updates["failure_reason"] = ""
	}
	res := r.db.WithContext(ctx).
		Model(&Comp{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *compRepository) Complete(
	ctx context.Context,
	id uuid.UUID,
	settlementRef string,
	match money.Amount,
	at time.Time,
) (bool, error) {
	return r.fromPending(ctx, id, map[string]any{
		"status":          string(comp.StatusCompleted),
		"settlement_ref":  settlementRef,
		"affiliate_match": match,
		"updated_at":      at,
	})
}

func (r *compRepository) Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.fromPending(ctx, id, map[string]any{
		"status":         string(comp.StatusFailed),
		"failure_reason": reason,
		"updated_at":     at,
	})
}

func (r *compRepository) fromPending(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Comp{}).
		Where("id = ? AND status = ?", id, string(comp.StatusPending)).
		Updates(updates)
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *compRepository) ListPendingBefore(ctx context.Context, before time.Time) ([]comp.Comp, error) {
	var rows []Comp
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(comp.StatusPending), before).
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]comp.Comp, len(rows))
	for i, m := range rows {
		out[i] = toComp(m)
	}
	return out, nil
}

func (r *compRepository) List(ctx context.Context, status *comp.Status) ([]comp.Comp, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	var rows []Comp
	if err := q.Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]comp.Comp, len(rows))
	for i, m := range rows {
		out[i] = toComp(m)
	}
	return out, nil
}

func fromComp(c *comp.Comp) Comp {
	return Comp{
		ID:             c.ID,
		UserID:         c.UserID,
		CompType:       c.CompType,
		Amount:         c.Amount,
		Status:         string(c.Status),
		SettlementRef:  c.SettlementRef,
		AffiliateMatch: c.AffiliateMatch,
		Reason:         c.Reason,
		MilestoneKey:   c.MilestoneKey,
		Attempts:       c.Attempts,
		FailureReason:  c.FailureReason,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func toComp(m Comp) comp.Comp {
	return comp.Comp{
		ID:             m.ID,
		UserID:         m.UserID,
		CompType:       m.CompType,
		Amount:         m.Amount,
		Status:         comp.Status(m.Status),
		SettlementRef:  m.SettlementRef,
		AffiliateMatch: m.AffiliateMatch,
		Reason:         m.Reason,
		MilestoneKey:   m.MilestoneKey,
		Attempts:       m.Attempts,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
