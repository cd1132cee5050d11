// Package ledger holds the treasury pool accounts and the append-only
// transaction log their balances are derived from.
//
// Invariants:
//   - A pool balance is never stored; it is the signed sum of the pool's
//     transactions up to a point in time.
//   - Transactions are immutable once written. Corrections are new,
//     compensating transactions.
//   - Amounts are strictly positive; the direction carries the sign.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPool is returned for a pool name outside the configured set.
	ErrInvalidPool = fmt.Errorf("%w: unknown pool", domain.ErrInvalidInput)
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	// ErrInvalidAsset is returned for assets the ledger does not track.
	ErrInvalidAsset = fmt.Errorf("%w: unsupported asset", domain.ErrInvalidInput)
	// ErrInvalidDirection is returned for a direction other than in/out.
	ErrInvalidDirection = fmt.Errorf("%w: direction must be in or out", domain.ErrInvalidInput)
	// ErrReservationNotHeld is returned when committing or releasing a
	// reservation that was already settled either way.
	ErrReservationNotHeld = fmt.Errorf("%w: reservation is not held", domain.ErrInvalidTransition)
	// ErrTransactionConflict is returned when an idempotency key is reused
	// with different content.
	ErrTransactionConflict = fmt.Errorf("%w: transaction id reused with different content", domain.ErrAlreadyExists)
)

// PoolName identifies a treasury pool.
type PoolName string

const (
	Consumer  PoolName = "consumer"
	Affiliate PoolName = "affiliate"
	Wholesale PoolName = "wholesale"
)

// PoolNames lists the named pools in display order.
var PoolNames = []PoolName{Consumer, Affiliate, Wholesale}

// ParsePoolName validates a pool name.
func ParsePoolName(s string) (PoolName, error) {
	name := PoolName(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range PoolNames {
		if p == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrInvalidPool, s)
}

func (p PoolName) String() string { return string(p) }

// Direction is the sign of a ledger transaction.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// ParseDirection validates a direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case In, Out:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Pool is a named custodial account. Its allocation is stored in basis
// points so the sum check is exact.
type Pool struct {
	Name           PoolName
	CustodyAddress string
	AllocationBps  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AllocationPct returns the allocation as a percentage, e.g. 50 or 5.5.
func (p Pool) AllocationPct() decimal.Decimal {
	return decimal.New(p.AllocationBps, -2)
}

// Balance is the derived view of a pool at a point in time.
type Balance struct {
	Pool PoolName
	USDT money.Money
	Gas  money.Money
	AsOf time.Time
}

// NewBalance builds a balance from per-asset signed sums.
func NewBalance(pool PoolName, sums map[money.Code]money.Amount, asOf time.Time) Balance {
	return Balance{
		Pool: pool,
		USDT: money.FromSmallestUnit(sums[money.USDT], money.USDTCurrency),
		Gas:  money.FromSmallestUnit(sums[money.GAS], money.GASCurrency),
		AsOf: asOf,
	}
}

// Of returns the balance of one asset.
func (b Balance) Of(asset money.Code) money.Money {
	if asset == money.GAS {
		return b.Gas
	}
	return b.USDT
}

// Transaction is one immutable entry of the pool ledger. ID doubles as the
// idempotency key of the operation that produced it.
type Transaction struct {
	ID                  uuid.UUID
	Pool                PoolName
	Asset               money.Code
	Direction           Direction
	Amount              money.Amount
	CounterpartyAddress string
	SettlementRef       *string
	Reason              string
	CreatedAt           time.Time
}

// Signed returns the amount with the direction applied.
func (t Transaction) Signed() money.Amount {
	if t.Direction == Out {
		return -t.Amount
	}
	return t.Amount
}

// Money returns the amount as a value object.
func (t Transaction) Money() money.Money {
	return money.FromSmallestUnit(t.Amount, t.Asset.ToCurrency())
}

// SameContent reports whether two transactions describe the same movement,
// ignoring timestamps.
func (t Transaction) SameContent(o Transaction) bool {
	return t.ID == o.ID &&
		t.Pool == o.Pool &&
		t.Asset == o.Asset &&
		t.Direction == o.Direction &&
		t.Amount == o.Amount &&
		t.CounterpartyAddress == o.CounterpartyAddress &&
		t.Reason == o.Reason
}

// Fold sums transactions per asset. It is the single definition of a
// balance; the store's SQL aggregation must agree with it.
func Fold(txs []Transaction, asOf time.Time) map[money.Code]money.Amount {
	sums := map[money.Code]money.Amount{}
	for _, tx := range txs {
		if tx.CreatedAt.After(asOf) {
			continue
		}
		sums[tx.Asset] += tx.Signed()
	}
	return sums
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Pool      PoolName
	Direction Direction
	Page      int
	PageSize  int
}

// Normalize applies paging defaults.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 500 {
		f.PageSize = 50
	}
	return f
}
