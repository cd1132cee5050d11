package payout

import (
	"time"

	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/webapi/common"
)

//revive:disable

// AggregateRequest closes the current period. An empty period_end means now.
type AggregateRequest struct {
	PeriodEnd *time.Time `json:"period_end"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// EarningRequest records a pool-share earning for an affiliate.
type EarningRequest struct {
	AffiliateID string `json:"affiliate_id" validate:"required,uuid"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Ref         string `json:"ref" validate:"required,max=128"`
}

type PayoutDTO struct {
	ID            string    `json:"id"`
	BatchID       string    `json:"batch_id,omitempty"`
	AffiliateID   string    `json:"affiliate_id"`
	Amount        string    `json:"amount"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	SettlementRef string    `json:"settlement_ref,omitempty"`
	SourceRef     string    `json:"source_ref,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	EarnedAt      time.Time `json:"earned_at"`
}

type BatchDTO struct {
	ID             string      `json:"id"`
	PeriodStart    time.Time   `json:"period_start"`
	PeriodEnd      time.Time   `json:"period_end"`
	AffiliateCount int         `json:"affiliate_count"`
	Total          string      `json:"total"`
	Status         string      `json:"status"`
	ApprovedBy     string      `json:"approved_by,omitempty"`
	ExecutedAt     *time.Time  `json:"executed_at,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	Payouts        []PayoutDTO `json:"payouts,omitempty"`
}

func ToPayoutDTO(p payout.Payout) PayoutDTO {
	dto := PayoutDTO{
		ID:            p.ID.String(),
		AffiliateID:   p.AffiliateID.String(),
		Amount:        common.FormatUSDT(p.Amount),
		Type:          string(p.Type),
		Status:        string(p.Status),
		SettlementRef: p.SettlementRef,
		SourceRef:     p.SourceRef,
		FailureReason: p.FailureReason,
		EarnedAt:      p.EarnedAt,
	}
	if p.BatchID != nil {
		dto.BatchID = p.BatchID.String()
	}
	return dto
}

func ToBatchDTO(b *payout.Batch) BatchDTO {
	dto := BatchDTO{
		ID:             b.ID.String(),
		PeriodStart:    b.PeriodStart,
		PeriodEnd:      b.PeriodEnd,
		AffiliateCount: b.AffiliateCount,
		Total:          b.Total().StringFixed(),
		Status:         string(b.Status),
		ApprovedBy:     b.ApprovedBy,
		ExecutedAt:     b.ExecutedAt,
		FailureReason:  b.FailureReason,
	}
	for _, p := range b.Payouts {
		dto.Payouts = append(dto.Payouts, ToPayoutDTO(p))
	}
	return dto
}
