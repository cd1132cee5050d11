package repository

import (
	"context"
	"fmt"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/transfer"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type transferRepository struct {
	db *gorm.DB
}

// NewTransferRepository returns the GORM pending transfer repository.
func NewTransferRepository(db *gorm.DB) repository.TransferRepository {
	return &transferRepository{db: db}
}

func (r *transferRepository) Create(ctx context.Context, t *transfer.PendingTransfer) error {
	m := fromPendingTransfer(t)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *transferRepository) Get(ctx context.Context, id uuid.UUID) (*transfer.PendingTransfer, error) {
	var m PendingTransfer
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	t := toPendingTransfer(m)
	return &t, nil
}

func (r *transferRepository) Save(ctx context.Context, t *transfer.PendingTransfer, from transfer.Status) error {
	res := r.db.WithContext(ctx).
		Model(&PendingTransfer{}).
		Where("id = ? AND status = ?", t.ID, string(from)).
		Updates(map[string]any{
			"status":         string(t.Status),
			"confirmed_by":   t.ConfirmedBy,
			"settlement_ref": t.SettlementRef,
			"failure_reason": t.FailureReason,
			"updated_at":     t.UpdatedAt,
		})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: transfer %s is no longer %s", domain.ErrInvalidTransition, t.ID, from)
	}
	return nil
}

func (r *transferRepository) List(ctx context.Context, status *transfer.Status) ([]transfer.PendingTransfer, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	var rows []PendingTransfer
	if err := q.Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]transfer.PendingTransfer, len(rows))
	for i, m := range rows {
		out[i] = toPendingTransfer(m)
	}
	return out, nil
}

func fromPendingTransfer(t *transfer.PendingTransfer) PendingTransfer {
	return PendingTransfer{
		ID:            t.ID,
		PoolName:      string(t.Pool),
		ToAddress:     t.ToAddress,
		Amount:        t.Amount,
		Reason:        t.Reason,
		Status:        string(t.Status),
		InitiatedBy:   t.InitiatedBy,
		ConfirmedBy:   t.ConfirmedBy,
		SettlementRef: t.SettlementRef,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toPendingTransfer(m PendingTransfer) transfer.PendingTransfer {
	return transfer.PendingTransfer{
		ID:            m.ID,
		Pool:          ledger.PoolName(m.PoolName),
		ToAddress:     m.ToAddress,
		Amount:        m.Amount,
		Reason:        m.Reason,
		Status:        transfer.Status(m.Status),
		InitiatedBy:   m.InitiatedBy,
		ConfirmedBy:   m.ConfirmedBy,
		SettlementRef: m.SettlementRef,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
