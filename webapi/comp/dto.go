package comp

import (
	"time"

	"github.com/amirasaad/treasury/pkg/domain/comp"
	"github.com/amirasaad/treasury/webapi/common"
)

//revive:disable

type AwardRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Amount   string `json:"amount" validate:"required,numeric"`
	Reason   string `json:"reason" validate:"max=512"`
	CompType string `json:"comp_type" validate:"omitempty,max=64"`
}

type BulkRetryRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

// ScanEventRequest is pushed by the scan service when a member's
// lifetime scan count changes.
type ScanEventRequest struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	ScanCount int64  `json:"scan_count" validate:"gte=0"`
}

type CompDTO struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CompType       string    `json:"comp_type"`
	Amount         string    `json:"amount"`
	Status         string    `json:"status"`
	SettlementRef  string    `json:"settlement_ref,omitempty"`
	AffiliateMatch string    `json:"affiliate_match"`
	Reason         string    `json:"reason,omitempty"`
	MilestoneKey   string    `json:"milestone_key,omitempty"`
	Attempts       int       `json:"attempts"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type BulkRetryDTO struct {
	Initiated int `json:"initiated"`
}

func ToCompDTO(c comp.Comp) CompDTO {
	dto := CompDTO{
		ID:             c.ID.String(),
		UserID:         c.UserID,
		CompType:       c.CompType,
		Amount:         c.Money().StringFixed(),
		Status:         string(c.Status),
		SettlementRef:  c.SettlementRef,
		AffiliateMatch: common.FormatUSDT(c.AffiliateMatch),
		Reason:         c.Reason,
		Attempts:       c.Attempts,
		FailureReason:  c.FailureReason,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.MilestoneKey != nil {
		dto.MilestoneKey = *c.MilestoneKey
	}
	return dto
}

func toCompDTOs(cs []comp.Comp) []CompDTO {
	out := make([]CompDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, ToCompDTO(c))
	}
	return out
}
