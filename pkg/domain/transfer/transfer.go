// Package transfer models an operator-initiated pool transfer and its
// two-phase confirmation.
//
//	validated -> reviewed -> dispatched -> settled
//	                                    \-> failed
//	validated|reviewed -> abandoned
//
// Phase 1 (review) has no external effect and may be abandoned. Phase 2
// (confirm) dispatches to the settlement rail and cannot be cancelled.
package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	// ErrInvalidAddress is returned for a destination that is not a
	// well-formed hex address.
	ErrInvalidAddress = fmt.Errorf("%w: invalid destination address", domain.ErrInvalidInput)
	// ErrAcknowledgementMismatch is returned when the typed confirmation
	// phrase does not match exactly.
	ErrAcknowledgementMismatch = fmt.Errorf("%w: acknowledgement does not match", domain.ErrInvalidInput)
)

// Status of a pending transfer.
type Status string

const (
	StatusValidated  Status = "validated"
	StatusReviewed   Status = "reviewed"
	StatusDispatched Status = "dispatched"
	StatusSettled    Status = "settled"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

var transitions = map[Status][]Status{
	StatusValidated:  {StatusReviewed, StatusAbandoned},
	StatusReviewed:   {StatusDispatched, StatusAbandoned},
	StatusDispatched: {StatusSettled, StatusFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateAddress checks a destination is a 20-byte hex address.
func ValidateAddress(address string) error {
	if !common.IsHexAddress(strings.TrimSpace(address)) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// NormalizeAddress returns the checksummed form of a valid address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(strings.TrimSpace(address)).Hex()
}

// PendingTransfer is an operator transfer between validation and settlement.
type PendingTransfer struct {
	ID            uuid.UUID
	Pool          ledger.PoolName
	ToAddress     string
	Amount        money.Amount
	Reason        string
	Status        Status
	InitiatedBy   string
	ConfirmedBy   string
	SettlementRef string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transition moves the transfer to a new status or returns ErrInvalidTransition.
func (t *PendingTransfer) Transition(to Status, at time.Time) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: transfer %s cannot go from %s to %s",
			domain.ErrInvalidTransition, t.ID, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = at
	return nil
}

// Money returns the amount as a value object.
func (t PendingTransfer) Money() money.Money {
	return money.FromSmallestUnit(t.Amount, money.USDTCurrency)
}

// ReviewPayload is what an operator sees before typing the confirmation phrase.
type ReviewPayload struct {
	TransferID         uuid.UUID       `json:"transferId"`
	From               ledger.PoolName `json:"from"`
	FromAddress        string          `json:"fromAddress"`
	To                 string          `json:"to"`
	Amount             money.Money     `json:"amount"`
	Reason             string          `json:"reason"`
	AvailableBalance   money.Money     `json:"availableBalance"`
	ConfirmationPhrase string          `json:"confirmationPhrase"`
}
