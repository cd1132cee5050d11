// Package comp awards complimentary payments to members, settles them from
// the consumer pool, and credits the upline affiliate's reward match.
package comp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/domain/comp"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/observability"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sender moves money out of a pool.
type Sender interface {
	Send(ctx context.Context, req transfer.SendRequest) (*ledger.Transaction, error)
}

// EarningRecorder credits an affiliate earning, idempotent by source ref.
type EarningRecorder interface {
	RecordEarning(
		ctx context.Context,
		affiliateID uuid.UUID,
		amount money.Amount,
		typ payout.Type,
		sourceRef string,
	) (*payout.Payout, error)
}

// Config holds the program parameters the engine applies.
type Config struct {
	MatchRate  decimal.Decimal
	Milestones []comp.Milestone
}

// Engine awards and settles comps.
type Engine struct {
	uow      repository.UnitOfWork
	sender   Sender
	earnings EarningRecorder
	bus      eventbus.Bus
	cfg      Config
	tracker  *eventbus.IdempotencyTracker
	logger   *slog.Logger
	metrics  observability.Recorder
	now      func() time.Time

	scanMu sync.Mutex
}

// New creates a comp Engine. bus and metrics may be nil; without a bus
// awarded comps are settled inline.
func New(
	uow repository.UnitOfWork,
	sender Sender,
	earnings EarningRecorder,
	bus eventbus.Bus,
	cfg Config,
	logger *slog.Logger,
	metrics observability.Recorder,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		uow:      uow,
		sender:   sender,
		earnings: earnings,
		bus:      bus,
		cfg:      cfg,
		tracker:  eventbus.NewIdempotencyTracker(),
		logger:   logger.With("service", "comp"),
		metrics:  observability.OrNop(metrics),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// AwardRequest describes a comp to award.
type AwardRequest struct {
	UserID   string
	Amount   money.Amount
	Reason   string
	CompType string
}

// AwardComp creates a pending comp and requests its settlement.
func (e *Engine) AwardComp(ctx context.Context, req AwardRequest) (*comp.Comp, error) {
	c, err := comp.New(req.UserID, req.Amount, req.Reason, req.CompType, e.now())
	if err != nil {
		return nil, err
	}
	repo, err := e.uow.CompRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Info("comp awarded", "comp_id", c.ID, "user_id", c.UserID,
		"amount", c.Money().StringFixed(), "type", c.CompType)

	if err := e.requestSettlement(ctx, c.ID, c.Attempts); err != nil {
		e.logger.Warn("settlement request failed, comp left pending for the sweep",
			"comp_id", c.ID, "error", err)
	}
	return e.GetComp(ctx, c.ID)
}

func (e *Engine) requestSettlement(ctx context.Context, id uuid.UUID, attempt int) error {
	if e.bus == nil {
		_, err := e.Settle(ctx, id)
		return err
	}
	return e.bus.Emit(ctx, events.CompSettlementRequested{CompID: id, Attempt: attempt})
}

// Settle pays a pending comp from the consumer pool to the member's wallet
// and credits the upline's reward match before completing it. A comp that is
// no longer pending is returned unchanged. A settlement failure is recorded
// on the comp, not returned. When the match cannot be credited the comp
// stays pending and the error is returned; settling it again reuses the
// committed send.
func (e *Engine) Settle(ctx context.Context, id uuid.UUID) (*comp.Comp, error) {
	repo, err := e.uow.CompRepository()
	if err != nil {
		return nil, err
	}
	c, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("comp_id", id, "user_id", c.UserID, "attempt", c.Attempts)
	if c.Status != comp.StatusPending {
		logger.Info("comp not pending, skipping settlement", "status", c.Status)
		return c, nil
	}

	memberRepo, err := e.uow.MemberRepository()
	if err != nil {
		return nil, err
	}
	member, err := memberRepo.Get(ctx, c.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if member == nil || member.WalletAddress == "" {
		return e.fail(ctx, c, fmt.Errorf("%w: member %s has no wallet address", domain.ErrInvalidInput, c.UserID))
	}

	tx, err := e.sender.Send(ctx, transfer.SendRequest{
		ID:     c.ID,
		Pool:   ledger.Consumer,
		To:     member.WalletAddress,
		Amount: c.Amount,
		Reason: fmt.Sprintf("comp %s", c.CompType),
	})
	if err != nil {
		return e.fail(ctx, c, err)
	}

	var match money.Amount
	if member.UplineAffiliateID != nil {
		match, err = e.creditMatch(ctx, c, *member.UplineAffiliateID)
		if err != nil {
			logger.Error("failed to credit reward match, comp left pending",
				"affiliate_id", *member.UplineAffiliateID, "error", err)
			return nil, fmt.Errorf("credit reward match for comp %s: %w", c.ID, err)
		}
	}

	var ref string
	if tx.SettlementRef != nil {
		ref = *tx.SettlementRef
	}
	won, err := repo.Complete(ctx, c.ID, ref, match, e.now())
	if err != nil {
		return nil, err
	}
	if !won {
		logger.Warn("comp settled concurrently")
		return repo.Get(ctx, c.ID)
	}
	if c, err = repo.Get(ctx, c.ID); err != nil {
		return nil, err
	}

	e.metrics.CompOutcome(string(comp.StatusCompleted))
	e.emit(ctx, events.CompCompleted{
		CompID:         c.ID,
		UserID:         c.UserID,
		Amount:         c.Amount,
		AffiliateMatch: c.AffiliateMatch,
		SettlementRef:  c.SettlementRef,
	})
	logger.Info("comp completed", "settlement_ref", c.SettlementRef,
		"affiliate_match", money.FormatAmount(c.AffiliateMatch, money.USDT))
	return c, nil
}

// creditMatch records the upline's reward_match earning for a paid comp.
// Inactive affiliates earn nothing.
func (e *Engine) creditMatch(ctx context.Context, c *comp.Comp, affiliateID uuid.UUID) (money.Amount, error) {
	affRepo, err := e.uow.AffiliateRepository()
	if err != nil {
		return 0, err
	}
	aff, err := affRepo.Get(ctx, affiliateID)
	if err != nil {
		return 0, err
	}
	if !aff.Active() {
		return 0, nil
	}
	match := comp.MatchAmount(c.Amount, e.cfg.MatchRate)
	if match <= 0 {
		return 0, nil
	}
	if _, err := e.earnings.RecordEarning(ctx, affiliateID, match, payout.TypeRewardMatch, c.ID.String()); err != nil {
		return 0, err
	}
	return match, nil
}

func (e *Engine) fail(ctx context.Context, c *comp.Comp, cause error) (*comp.Comp, error) {
	repo, err := e.uow.CompRepository()
	if err != nil {
		return nil, err
	}
	won, err := repo.Fail(ctx, c.ID, cause.Error(), e.now())
	if err != nil {
		return nil, err
	}
	if !won {
		return repo.Get(ctx, c.ID)
	}
	if c, err = repo.Get(ctx, c.ID); err != nil {
		return nil, err
	}
	e.metrics.CompOutcome(string(comp.StatusFailed))
	e.emit(ctx, events.CompFailed{CompID: c.ID, Reason: c.FailureReason})
	e.logger.Warn("comp settlement failed", "comp_id", c.ID, "attempt", c.Attempts, "error", cause)
	return c, nil
}

// SweepPending settles comps that have been pending longer than age, such
// as those whose settlement request was lost or whose match could not be
// credited. It returns how many were completed or failed.
func (e *Engine) SweepPending(ctx context.Context, age time.Duration) (int, error) {
	repo, err := e.uow.CompRepository()
	if err != nil {
		return 0, err
	}
	stale, err := repo.ListPendingBefore(ctx, e.now().Add(-age))
	if err != nil {
		return 0, err
	}
	settled := 0
	var errs []error
	for i := range stale {
		c, err := e.Settle(ctx, stale[i].ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c.Status != comp.StatusPending {
			settled++
		}
	}
	if len(stale) > 0 {
		e.logger.Info("pending comps swept", "stale", len(stale), "settled", settled, "errors", len(errs))
	}
	return settled, errors.Join(errs...)
}

// SettlementHandler returns the event handler for CompSettlementRequested.
// Deliveries of the same comp attempt are handled once.
func (e *Engine) SettlementHandler() eventbus.HandlerFunc {
	handler := func(ctx context.Context, ev events.Event) error {
		id, _, err := settlementRequest(ev)
		if err != nil {
			return err
		}
		_, err = e.Settle(ctx, id)
		return err
	}
	key := func(ev events.Event) string {
		id, attempt, err := settlementRequest(ev)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("%s:%d", id, attempt)
	}
	return eventbus.WithIdempotency(handler, e.tracker, key, "comp_settlement", e.logger)
}

// settlementRequest accepts the value form emitted in process and the
// pointer form decoded from durable buses.
func settlementRequest(ev events.Event) (uuid.UUID, int, error) {
	switch v := ev.(type) {
	case events.CompSettlementRequested:
		return v.CompID, v.Attempt, nil
	case *events.CompSettlementRequested:
		return v.CompID, v.Attempt, nil
	}
	return uuid.Nil, 0, fmt.Errorf("unexpected event %T for comp settlement", ev)
}

// RecordScanCount stores a member's scan count and awards each crossed
// milestone that was never awarded to them. Counts never go down, so a
// lower count is ignored.
func (e *Engine) RecordScanCount(ctx context.Context, userID string, scanCount int64) ([]comp.Comp, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if scanCount < 0 {
		return nil, fmt.Errorf("%w: scan count must not be negative, got %d", domain.ErrInvalidInput, scanCount)
	}
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	var awarded []comp.Comp
	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		memberRepo, err := uow.MemberRepository()
		if err != nil {
			return err
		}
		now := e.now()
		m, err := memberRepo.Get(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if m == nil {
			m = &affiliate.Member{UserID: userID, CreatedAt: now}
		}
		if scanCount > m.ScanCount {
			m.ScanCount = scanCount
		}
		m.UpdatedAt = now
		if err := memberRepo.Upsert(ctx, m); err != nil {
			return err
		}

		compRepo, err := uow.CompRepository()
		if err != nil {
			return err
		}
		for _, ms := range comp.Crossed(e.cfg.Milestones, m.ScanCount) {
			key := ms.Key(userID)
			done, err := compRepo.MilestoneAwarded(ctx, key)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			c, err := comp.New(userID, ms.Amount, fmt.Sprintf("reached %d scans", ms.ScanCount), ms.Type(), now)
			if err != nil {
				return err
			}
			c.MilestoneKey = &key
			if err := compRepo.Create(ctx, c); err != nil {
				return err
			}
			awarded = append(awarded, *c)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("RecordScanCount failed", "user_id", userID, "error", err)
		return nil, err
	}

	for i := range awarded {
		e.logger.Info("milestone comp awarded", "comp_id", awarded[i].ID, "user_id", userID,
			"milestone", *awarded[i].MilestoneKey)
		if err := e.requestSettlement(ctx, awarded[i].ID, awarded[i].Attempts); err != nil {
			e.logger.Warn("failed to request settlement", "comp_id", awarded[i].ID, "error", err)
		}
	}
	return awarded, nil
}

// RetryFailed moves a failed comp back to pending under the same id and
// requests settlement again. Only one of concurrent retries wins.
func (e *Engine) RetryFailed(ctx context.Context, id uuid.UUID) (*comp.Comp, error) {
	repo, err := e.uow.CompRepository()
	if err != nil {
		return nil, err
	}
	won, err := repo.Transition(ctx, id, comp.StatusFailed, comp.StatusPending, e.now())
	if err != nil {
		return nil, err
	}
	c, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !won {
		err := fmt.Errorf("%w: comp %s is %s, retry requires failed", domain.ErrInvalidTransition, id, c.Status)
		e.logger.Error("RetryFailed rejected", "comp_id", id, "error", err)
		return nil, err
	}
	e.logger.Info("comp retry requested", "comp_id", id, "attempt", c.Attempts)
	if err := e.requestSettlement(ctx, id, c.Attempts); err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

// BulkRetry retries each failed comp and returns how many were initiated.
func (e *Engine) BulkRetry(ctx context.Context, ids []uuid.UUID) (int, error) {
	initiated := 0
	for _, id := range ids {
		if _, err := e.RetryFailed(ctx, id); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return initiated, err
		}
		initiated++
	}
	return initiated, nil
}

func (e *Engine) ListComps(ctx context.Context, status *comp.Status) ([]comp.Comp, error) {
	repo, err := e.uow.CompRepository()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, status)
}

func (e *Engine) GetComp(ctx context.Context, id uuid.UUID) (*comp.Comp, error) {
	repo, err := e.uow.CompRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Emit(ctx, ev); err != nil {
		e.logger.Warn("failed to emit event", "type", ev.Type(), "error", err)
	}
}

// MilestonesFromProgram converts the configured milestone table.
func MilestonesFromProgram(p *config.Program) ([]comp.Milestone, error) {
	out := make([]comp.Milestone, 0, len(p.Milestones))
	for _, mc := range p.Milestones {
		amount, err := money.Parse(mc.Amount, money.USDTCurrency)
		if err != nil {
			return nil, fmt.Errorf("milestone %d: %w", mc.ScanCount, err)
		}
		out = append(out, comp.Milestone{ScanCount: mc.ScanCount, CompType: mc.CompType, Amount: amount.Amount()})
	}
	return out, nil
}

// ConfigFromProgram builds the engine config from the program file.
func ConfigFromProgram(p *config.Program) (Config, error) {
	rate, err := decimal.NewFromString(p.MatchRate)
	if err != nil {
		return Config{}, fmt.Errorf("%w: match rate %q", domain.ErrInvalidInput, p.MatchRate)
	}
	milestones, err := MilestonesFromProgram(p)
	if err != nil {
		return Config{}, err
	}
	return Config{MatchRate: rate, Milestones: milestones}, nil
}
