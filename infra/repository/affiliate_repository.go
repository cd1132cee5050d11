package repository

import (
	"context"

	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type affiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository returns the GORM affiliate repository.
func NewAffiliateRepository(db *gorm.DB) repository.AffiliateRepository {
	return &affiliateRepository{db: db}
}

func (r *affiliateRepository) Create(ctx context.Context, a *affiliate.Affiliate) error {
	m := Affiliate{
		ID:            a.ID,
		Name:          a.Name,
		PayoutAddress: a.PayoutAddress,
		Status:        string(a.Status),
		EnrolledAt:    a.EnrolledAt,
		UpdatedAt:     a.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *affiliateRepository) Get(ctx context.Context, id uuid.UUID) (*affiliate.Affiliate, error) {
	var m Affiliate
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	a := toAffiliate(m)
	return &a, nil
}

func (r *affiliateRepository) Update(ctx context.Context, a *affiliate.Affiliate) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&Affiliate{}).
			Where("id = ?", a.ID).
			Updates(map[string]any{
				"name":           a.Name,
				"payout_address": a.PayoutAddress,
				"status":         string(a.Status),
				"updated_at":     a.UpdatedAt,
			}).Error
	})
}

func (r *affiliateRepository) List(ctx context.Context) ([]affiliate.Affiliate, error) {
	var rows []Affiliate
	if err := r.db.WithContext(ctx).Order("enrolled_at").Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]affiliate.Affiliate, len(rows))
	for i, m := range rows {
		out[i] = toAffiliate(m)
	}
	return out, nil
}

func toAffiliate(m Affiliate) affiliate.Affiliate {
	return affiliate.Affiliate{
		ID:            m.ID,
		Name:          m.Name,
		PayoutAddress: m.PayoutAddress,
		Status:        affiliate.Status(m.Status),
		EnrolledAt:    m.EnrolledAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository returns the GORM member repository.
func NewMemberRepository(db *gorm.DB) repository.MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Upsert(ctx context.Context, mem *affiliate.Member) error {
	m := Member{
		UserID:            mem.UserID,
		WalletAddress:     mem.WalletAddress,
		UplineAffiliateID: mem.UplineAffiliateID,
		ScanCount:         mem.ScanCount,
		CreatedAt:         mem.CreatedAt,
		UpdatedAt:         mem.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"wallet_address", "upline_affiliate_id", "scan_count", "updated_at",
			}),
		}).Create(&m).Error
	})
}

func (r *memberRepository) Get(ctx context.Context, userID string) (*affiliate.Member, error) {
	var m Member
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return &affiliate.Member{
		UserID:            m.UserID,
		WalletAddress:     m.WalletAddress,
		UplineAffiliateID: m.UplineAffiliateID,
		ScanCount:         m.ScanCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}
