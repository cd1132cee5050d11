package repository

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/transfer"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/google/uuid"
)

// LedgerRepository is the append-only transaction log. It deliberately
// exposes no update or delete.
type LedgerRepository interface {
	// Append inserts a transaction. A duplicate id returns domain.ErrAlreadyExists.
	Append(ctx context.Context, tx *ledger.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error)
	// SumByAsset folds the pool's transactions with created_at <= asOf.
	SumByAsset(ctx context.Context, pool ledger.PoolName, asOf time.Time) (map[money.Code]money.Amount, error)
	List(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, int64, error)
}

// PoolRepository stores the pool accounts.
type PoolRepository interface {
	Upsert(ctx context.Context, pool ledger.Pool) error
	Get(ctx context.Context, name ledger.PoolName) (*ledger.Pool, error)
	List(ctx context.Context) ([]ledger.Pool, error)
	// Lock takes a row lock on the pool for the rest of the transaction.
	Lock(ctx context.Context, name ledger.PoolName) error
}

// ReservationRepository stores outbound amounts held while the rail is called.
type ReservationRepository interface {
	Create(ctx context.Context, r *ledger.Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*ledger.Reservation, error)
	SumHeld(ctx context.Context, pool ledger.PoolName, asset money.Code) (money.Amount, error)
	// Transition moves a reservation from one status to another and reports
	// whether this call won.
	Transition(ctx context.Context, id uuid.UUID, from, to ledger.ReservationStatus, at time.Time) (bool, error)
	ListHeld(ctx context.Context) ([]ledger.Reservation, error)
}

// TransferRepository stores operator transfers awaiting confirmation.
type TransferRepository interface {
	Create(ctx context.Context, t *transfer.PendingTransfer) error
	Get(ctx context.Context, id uuid.UUID) (*transfer.PendingTransfer, error)
	// Save persists t if its stored status is still from.
	Save(ctx context.Context, t *transfer.PendingTransfer, from transfer.Status) error
	List(ctx context.Context, status *transfer.Status) ([]transfer.PendingTransfer, error)
}
