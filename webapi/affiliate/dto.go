package affiliate

import (
	"time"

	"github.com/amirasaad/treasury/pkg/domain/affiliate"
)

//revive:disable

type EnrollRequest struct {
	Name          string `json:"name" validate:"required,max=128"`
	PayoutAddress string `json:"payout_address" validate:"required"`
}

type MemberRequest struct {
	UserID            string `json:"user_id" validate:"required,max=128"`
	WalletAddress     string `json:"wallet_address"`
	UplineAffiliateID string `json:"upline_affiliate_id" validate:"omitempty,uuid"`
}

type AffiliateDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PayoutAddress string    `json:"payout_address"`
	Status        string    `json:"status"`
	EnrolledAt    time.Time `json:"enrolled_at"`
}

type MemberDTO struct {
	UserID            string `json:"user_id"`
	WalletAddress     string `json:"wallet_address,omitempty"`
	UplineAffiliateID string `json:"upline_affiliate_id,omitempty"`
	ScanCount         int64  `json:"scan_count"`
}

func ToAffiliateDTO(a affiliate.Affiliate) AffiliateDTO {
	return AffiliateDTO{
		ID:            a.ID.String(),
		Name:          a.Name,
		PayoutAddress: a.PayoutAddress,
		Status:        string(a.Status),
		EnrolledAt:    a.EnrolledAt,
	}
}

func ToMemberDTO(m affiliate.Member) MemberDTO {
	dto := MemberDTO{UserID: m.UserID, WalletAddress: m.WalletAddress, ScanCount: m.ScanCount}
	if m.UplineAffiliateID != nil {
		dto.UplineAffiliateID = m.UplineAffiliateID.String()
	}
	return dto
}
