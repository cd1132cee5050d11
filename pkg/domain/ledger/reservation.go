package ledger

import (
	"time"

	"github.com/amirasaad/treasury/pkg/money"
	"github.com/google/uuid"
)

// ReservationStatus tracks an outbound amount between the balance check and
// the rail's answer.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation earmarks an outbound amount while the settlement rail is
// called without the pool lock held. Its ID is the ID of the ledger
// transaction it becomes on commit.
type Reservation struct {
	ID                  uuid.UUID
	Pool                PoolName
	Asset               money.Code
	Amount              money.Amount
	CounterpartyAddress string
	Reason              string
	Status              ReservationStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Held reports whether the reservation still counts against the pool.
func (r Reservation) Held() bool { return r.Status == ReservationHeld }

// Transaction returns the outbound ledger entry the reservation commits to.
func (r Reservation) Transaction(settlementRef string, at time.Time) (*Transaction, error) {
	return NewTransaction().
		WithID(r.ID).
		WithPool(r.Pool).
		WithAsset(r.Asset).
		Outbound(r.Amount).
		WithCounterparty(r.CounterpartyAddress).
		WithSettlementRef(settlementRef).
		WithReason(r.Reason).
		At(at).
		Build()
}
