// Package affiliate manages affiliate enrollment and the members whose comps
// earn their upline a reward match.
package affiliate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/pkg/domain/transfer"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/google/uuid"
)

// SunsetGate reports whether the program sunset has triggered.
type SunsetGate interface {
	Triggered(ctx context.Context) (bool, error)
}

// Service manages affiliates and members.
type Service struct {
	uow    repository.UnitOfWork
	gate   SunsetGate
	logger *slog.Logger
	now    func() time.Time
}

// New creates an affiliate Service. A nil gate never closes enrollment.
func New(uow repository.UnitOfWork, gate SunsetGate, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:    uow,
		gate:   gate,
		logger: logger.With("service", "affiliate"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enroll registers a new active affiliate. Enrollment is refused once the
// sunset has triggered.
func (s *Service) Enroll(ctx context.Context, name, payoutAddress string) (*affiliate.Affiliate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: affiliate name is required", domain.ErrInvalidInput)
	}
	if err := transfer.ValidateAddress(payoutAddress); err != nil {
		return nil, err
	}
	if s.gate != nil {
		closed, err := s.gate.Triggered(ctx)
		if err != nil {
			return nil, err
		}
		if closed {
			s.logger.Warn("enrollment refused after sunset", "name", name)
			return nil, affiliate.ErrEnrollmentClosed
		}
	}
	now := s.now()
	a := &affiliate.Affiliate{
		ID:            uuid.New(),
		Name:          strings.TrimSpace(name),
		PayoutAddress: transfer.NormalizeAddress(payoutAddress),
		Status:        affiliate.StatusActive,
		EnrolledAt:    now,
		UpdatedAt:     now,
	}
	repo, err := s.uow.AffiliateRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("affiliate enrolled", "affiliate_id", a.ID, "payout_address", a.PayoutAddress)
	return a, nil
}

// Deactivate stops an affiliate from earning and being paid. Deactivating
// twice is a no-op.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*affiliate.Affiliate, error) {
	repo, err := s.uow.AffiliateRepository()
	if err != nil {
		return nil, err
	}
	a, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Active() {
		return a, nil
	}
	a.Status = affiliate.StatusInactive
	a.UpdatedAt = s.now()
	if err := repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("affiliate deactivated", "affiliate_id", id)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*affiliate.Affiliate, error) {
	repo, err := s.uow.AffiliateRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]affiliate.Affiliate, error) {
	repo, err := s.uow.AffiliateRepository()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx)
}

// MemberRequest creates or updates a member.
type MemberRequest struct {
	UserID            string
	WalletAddress     string
	UplineAffiliateID *uuid.UUID
}

// UpsertMember creates or updates a member. The scan count is owned by the
// comp engine and is preserved.
func (s *Service) UpsertMember(ctx context.Context, req MemberRequest) (*affiliate.Member, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	wallet := ""
	if req.WalletAddress != "" {
		if err := transfer.ValidateAddress(req.WalletAddress); err != nil {
			return nil, err
		}
		wallet = transfer.NormalizeAddress(req.WalletAddress)
	}

	var out *affiliate.Member
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if req.UplineAffiliateID != nil {
			affRepo, err := uow.AffiliateRepository()
			if err != nil {
				return err
			}
			if _, err := affRepo.Get(ctx, *req.UplineAffiliateID); err != nil {
				return fmt.Errorf("upline affiliate %s: %w", *req.UplineAffiliateID, err)
			}
		}
		repo, err := uow.MemberRepository()
		if err != nil {
			return err
		}
		now := s.now()
		m := &affiliate.Member{
			UserID:            req.UserID,
			WalletAddress:     wallet,
			UplineAffiliateID: req.UplineAffiliateID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		existing, err := repo.Get(ctx, req.UserID)
		switch {
		case err == nil:
			m.ScanCount = existing.ScanCount
			m.CreatedAt = existing.CreatedAt
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if err := repo.Upsert(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetMember(ctx context.Context, userID string) (*affiliate.Member, error) {
	repo, err := s.uow.MemberRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, userID)
}

// Earnings lists an affiliate's payouts, batched or not, newest first.
func (s *Service) Earnings(ctx context.Context, affiliateID uuid.UUID) ([]payout.Payout, error) {
	repo, err := s.uow.PayoutRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListByAffiliate(ctx, affiliateID)
}
