package repository

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/google/uuid"
)

// BatchRepository stores payout batches without their payouts.
type BatchRepository interface {
	Create(ctx context.Context, b *payout.Batch) error
	Get(ctx context.Context, id uuid.UUID) (*payout.Batch, error)
	// Latest returns the batch with the greatest period end, or domain.ErrNotFound.
	Latest(ctx context.Context) (*payout.Batch, error)
	// Save persists b if its stored status is still from, otherwise it
	// returns domain.ErrInvalidTransition.
	Save(ctx context.Context, b *payout.Batch, from payout.BatchStatus) error
	List(ctx context.Context, status *payout.BatchStatus) ([]payout.Batch, error)
}

// PayoutRepository stores affiliate earnings and batched payouts.
type PayoutRepository interface {
	// CreateEarning inserts an unbatched payout. The (type, source ref) pair
	// is unique; a duplicate returns domain.ErrAlreadyExists.
	CreateEarning(ctx context.Context, p *payout.Payout) error
	GetBySource(ctx context.Context, typ payout.Type, sourceRef string) (*payout.Payout, error)
	ListUnbatched(ctx context.Context, before time.Time) ([]payout.Payout, error)
	// AssignBatch sets batch_id on the given payouts that are still unbatched
	// and returns how many it claimed.
	AssignBatch(ctx context.Context, batchID uuid.UUID, ids []uuid.UUID) (int64, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]payout.Payout, error)
	Update(ctx context.Context, p *payout.Payout) error
	// SetStatusByBatch moves every payout of the batch not already paid to status.
	SetStatusByBatch(ctx context.Context, batchID uuid.UUID, status payout.Status) error
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]payout.Payout, error)
}
