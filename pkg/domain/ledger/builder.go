package ledger

import (
	"fmt"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/google/uuid"
)

// Builder provides a fluent API for constructing valid transactions.
type Builder struct {
	tx Transaction
}

// NewTransaction starts a builder with a fresh id and USDT as asset.
func NewTransaction() *Builder {
	return &Builder{tx: Transaction{ID: uuid.New(), Asset: money.USDT}}
}

func (b *Builder) WithID(id uuid.UUID) *Builder {
	b.tx.ID = id
	return b
}

func (b *Builder) WithPool(pool PoolName) *Builder {
	b.tx.Pool = pool
	return b
}

func (b *Builder) WithAsset(asset money.Code) *Builder {
	b.tx.Asset = asset
	return b
}

func (b *Builder) Inbound(amount money.Amount) *Builder {
	b.tx.Direction = In
	b.tx.Amount = amount
	return b
}

func (b *Builder) Outbound(amount money.Amount) *Builder {
	b.tx.Direction = Out
	b.tx.Amount = amount
	return b
}

func (b *Builder) WithDirection(d Direction, amount money.Amount) *Builder {
	b.tx.Direction = d
	b.tx.Amount = amount
	return b
}

func (b *Builder) WithCounterparty(address string) *Builder {
	b.tx.CounterpartyAddress = address
	return b
}

func (b *Builder) WithSettlementRef(ref string) *Builder {
	if ref != "" {
		b.tx.SettlementRef = &ref
	}
	return b
}

func (b *Builder) WithReason(reason string) *Builder {
	b.tx.Reason = reason
	return b
}

func (b *Builder) At(t time.Time) *Builder {
	b.tx.CreatedAt = t
	return b
}

// Build validates and returns the transaction.
func (b *Builder) Build() (*Transaction, error) {
	tx := b.tx
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Validate checks the structural invariants of a transaction.
func (t Transaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}
	if _, err := ParsePoolName(string(t.Pool)); err != nil {
		return err
	}
	if !t.Asset.IsTracked() {
		return fmt.Errorf("%w %q", ErrInvalidAsset, t.Asset)
	}
	if _, err := ParseDirection(string(t.Direction)); err != nil {
		return err
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: got %s for pool %s", ErrInvalidAmount, money.FormatAmount(t.Amount, t.Asset), t.Pool)
	}
	return nil
}
