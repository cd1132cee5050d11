// Package payout models affiliate earnings and the batches they are paid in.
//
// Batch state machine:
//
//	pending -> approved -> paid
//	pending|approved -> failed
//	failed -> pending (retry only)
//
// paid is terminal. A batch's total always equals the sum of its payouts,
// and batch periods are contiguous and never overlap.
package payout

import (
	"fmt"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/google/uuid"
)

var (
	// ErrTotalMismatch is returned when a batch total no longer equals the
	// sum of its payouts.
	ErrTotalMismatch = fmt.Errorf("%w: batch total does not match payouts", domain.ErrInvalidTransition)
	// ErrIneligible is returned when a payout's affiliate is no longer active.
	ErrIneligible = fmt.Errorf("%w: affiliate not eligible for payout", domain.ErrInvalidInput)
	// ErrInvalidPeriod is returned for a period end at or before the start.
	ErrInvalidPeriod = fmt.Errorf("%w: period end must be after period start", domain.ErrInvalidInput)
)

// BatchStatus is the lifecycle state of a payout batch.
type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"
	BatchApproved BatchStatus = "approved"
	BatchPaid     BatchStatus = "paid"
	BatchFailed   BatchStatus = "failed"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:  {BatchApproved, BatchFailed},
	BatchApproved: {BatchPaid, BatchFailed},
	BatchFailed:   {BatchPending},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to BatchStatus) bool {
	for _, s := range batchTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseBatchStatus validates a status filter value.
func ParseBatchStatus(s string) (BatchStatus, error) {
	switch BatchStatus(s) {
	case BatchPending, BatchApproved, BatchPaid, BatchFailed:
		return BatchStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown batch status %q", domain.ErrInvalidInput, s)
}

// Type distinguishes how an earning arose.
type Type string

const (
	TypeRewardMatch Type = "reward_match"
	TypePoolShare   Type = "pool_share"
)

// Status of a single payout. It follows its batch except that a settled
// payout stays paid when the batch fails.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
)

// Payout is an amount owed to one affiliate. With a nil BatchID it is an
// unbatched earning waiting for aggregation.
type Payout struct {
	ID            uuid.UUID
	BatchID       *uuid.UUID
	AffiliateID   uuid.UUID
	Amount        money.Amount
	Type          Type
	Status        Status
	SettlementRef string
	SourceRef     string
	FailureReason string
	EarnedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewEarning creates an unbatched payout.
func NewEarning(affiliateID uuid.UUID, amount money.Amount, typ Type, sourceRef string, at time.Time) (*Payout, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: earning amount must be positive, got %s",
			domain.ErrInvalidInput, money.FormatAmount(amount, money.USDT))
	}
	if affiliateID == uuid.Nil {
		return nil, fmt.Errorf("%w: affiliate id is required", domain.ErrInvalidInput)
	}
	return &Payout{
		ID:          uuid.New(),
		AffiliateID: affiliateID,
		Amount:      amount,
		Type:        typ,
		Status:      StatusPending,
		SourceRef:   sourceRef,
		EarnedAt:    at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}, nil
}

// Batch groups the payouts of one period.
type Batch struct {
	ID             uuid.UUID
	PeriodStart    time.Time
	PeriodEnd      time.Time
	AffiliateCount int
	TotalAmount    money.Amount
	Status         BatchStatus
	ApprovedBy     string
	ExecutedAt     *time.Time
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Payouts        []Payout
}

// NewBatch builds a pending batch for [start, end) from the payouts it owns.
func NewBatch(start, end time.Time, payouts []Payout, at time.Time) (*Batch, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: [%s, %s)", ErrInvalidPeriod,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	b := &Batch{
		ID:          uuid.New(),
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      BatchPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	b.Payouts = make([]Payout, len(payouts))
	for i, p := range payouts {
		id := b.ID
		p.BatchID = &id
		p.Status = StatusPending
		b.Payouts[i] = p
	}
	b.TotalAmount, b.AffiliateCount = Summarize(b.Payouts)
	return b, nil
}

// Summarize returns the total amount and distinct affiliate count.
func Summarize(payouts []Payout) (money.Amount, int) {
	var total money.Amount
	affiliates := map[uuid.UUID]struct{}{}
	for _, p := range payouts {
		total += p.Amount
		affiliates[p.AffiliateID] = struct{}{}
	}
	return total, len(affiliates)
}

func (b *Batch) transition(to BatchStatus, at time.Time) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: batch %s cannot go from %s to %s",
			domain.ErrInvalidTransition, b.ID, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = at
	return nil
}

// Approve authorizes the spend. It moves no money.
func (b *Batch) Approve(approverID string, at time.Time) error {
	if approverID == "" {
		return fmt.Errorf("%w: approver id is required", domain.ErrInvalidInput)
	}
	if err := b.transition(BatchApproved, at); err != nil {
		return err
	}
	b.ApprovedBy = approverID
	return nil
}

// MarkPaid completes an approved batch.
func (b *Batch) MarkPaid(at time.Time) error {
	if err := b.transition(BatchPaid, at); err != nil {
		return err
	}
	b.ExecutedAt = &at
	b.FailureReason = ""
	return nil
}

// Fail moves a pending or approved batch to failed.
func (b *Batch) Fail(reason string, at time.Time) error {
	if err := b.transition(BatchFailed, at); err != nil {
		return err
	}
	b.FailureReason = reason
	return nil
}

// Reset re-enters pending from failed. Approval must be given again.
func (b *Batch) Reset(at time.Time) error {
	if err := b.transition(BatchPending, at); err != nil {
		return err
	}
	b.ApprovedBy = ""
	b.FailureReason = ""
	return nil
}

// CheckTotals verifies the batch total against its payouts.
func (b *Batch) CheckTotals(payouts []Payout) error {
	total, count := Summarize(payouts)
	if total != b.TotalAmount || count != b.AffiliateCount {
		return fmt.Errorf("%w: batch %s records %s over %d affiliates, payouts sum to %s over %d",
			ErrTotalMismatch, b.ID,
			money.FormatAmount(b.TotalAmount, money.USDT), b.AffiliateCount,
			money.FormatAmount(total, money.USDT), count)
	}
	return nil
}

// Total returns the batch total as a value object.
func (b *Batch) Total() money.Money {
	return money.FromSmallestUnit(b.TotalAmount, money.USDTCurrency)
}
