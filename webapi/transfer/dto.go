package transfer

import (
	"time"

	"github.com/amirasaad/treasury/pkg/domain/transfer"
)

//revive:disable

// InitiateRequest starts an operator transfer out of a pool.
type InitiateRequest struct {
	Pool   string `json:"pool" validate:"required,oneof=consumer affiliate wholesale"`
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required,numeric"`
	Reason string `json:"reason" validate:"required,max=512"`
}

// ConfirmRequest carries the typed acknowledgement of phase 2.
type ConfirmRequest struct {
	Acknowledgement string `json:"acknowledgement" validate:"required"`
}

type TransferDTO struct {
	ID            string    `json:"id"`
	Pool          string    `json:"pool"`
	To            string    `json:"to"`
	Amount        string    `json:"amount"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
	InitiatedBy   string    `json:"initiated_by"`
	ConfirmedBy   string    `json:"confirmed_by,omitempty"`
	SettlementRef string    `json:"settlement_ref,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ReviewDTO struct {
	TransferID         string `json:"transfer_id"`
	From               string `json:"from"`
	FromAddress        string `json:"from_address"`
	To                 string `json:"to"`
	Amount             string `json:"amount"`
	Reason             string `json:"reason"`
	AvailableBalance   string `json:"available_balance"`
	ConfirmationPhrase string `json:"confirmation_phrase"`
}

func ToTransferDTO(t *transfer.PendingTransfer) TransferDTO {
	return TransferDTO{
		ID:            t.ID.String(),
		Pool:          string(t.Pool),
		To:            t.ToAddress,
		Amount:        t.Money().StringFixed(),
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

func ToReviewDTO(p *transfer.ReviewPayload) ReviewDTO {
	return ReviewDTO{
		TransferID:         p.TransferID.String(),
		From:               string(p.From),
		FromAddress:        p.FromAddress,
		To:                 p.To,
		Amount:             p.Amount.StringFixed(),
		Reason:             p.Reason,
		AvailableBalance:   p.AvailableBalance.StringFixed(),
		ConfirmationPhrase: p.ConfirmationPhrase,
	}
}
