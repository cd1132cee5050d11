// Package comp models complimentary payments awarded to members and the
// reward match their upline affiliate earns on them.
package comp

import (
	"fmt"
	"sort"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status of a comp. failed -> pending is the only way back; comps are
// never deleted.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusCompleted, StatusFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: unknown comp status %q", domain.ErrInvalidInput, s)
}

// TypeManual marks an admin-awarded comp.
const TypeManual = "manual"

// Comp is a payment owed to a member.
type Comp struct {
	ID             uuid.UUID
	UserID         string
	CompType       string
	Amount         money.Amount
	Status         Status
	SettlementRef  string
	AffiliateMatch money.Amount
	Reason         string
	MilestoneKey   *string
	Attempts       int
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New creates a pending comp.
func New(userID string, amount money.Amount, reason, compType string, at time.Time) (*Comp, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: comp amount must be positive, got %s",
			domain.ErrInvalidInput, money.FormatAmount(amount, money.USDT))
	}
	if compType == "" {
		compType = TypeManual
	}
	return &Comp{
		ID:        uuid.New(),
		UserID:    userID,
		CompType:  compType,
		Amount:    amount,
		Status:    StatusPending,
		Reason:    reason,
		Attempts:  1,
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

// Money returns the comp amount as a value object.
func (c Comp) Money() money.Money {
	return money.FromSmallestUnit(c.Amount, money.USDTCurrency)
}

// MatchAmount is floor(amount x rate) in the smallest unit.
func MatchAmount(amount money.Amount, rate decimal.Decimal) money.Amount {
	return money.FromSmallestUnit(amount, money.USDTCurrency).MulFloor(rate).Amount()
}

// Milestone awards a fixed comp when a member's scan count reaches a threshold.
type Milestone struct {
	ScanCount int64
	CompType  string
	Amount    money.Amount
}

// Type returns the comp type, defaulting to milestone_<threshold>.
func (m Milestone) Type() string {
	if m.CompType != "" {
		return m.CompType
	}
	return fmt.Sprintf("milestone_%d", m.ScanCount)
}

// Key identifies the award of this milestone to one member.
func (m Milestone) Key(userID string) string {
	return fmt.Sprintf("%s:%d", userID, m.ScanCount)
}

// Crossed returns milestones with threshold <= scanCount in ascending order.
func Crossed(milestones []Milestone, scanCount int64) []Milestone {
	sorted := append([]Milestone(nil), milestones...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ScanCount < sorted[j].ScanCount })
	var out []Milestone
	for _, m := range sorted {
		if m.ScanCount <= scanCount {
			out = append(out, m)
		}
	}
	return out
}
