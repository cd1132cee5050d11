// Package payout aggregates affiliate earnings into periodic batches and
// pays approved batches out of the affiliate pool.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/observability"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/google/uuid"
)

// Sender moves money out of a pool. transfer.Service implements it.
type Sender interface {
	Send(ctx context.Context, req transfer.SendRequest) (*ledger.Transaction, error)
}

// Engine runs the payout batch lifecycle.
type Engine struct {
	uow     repository.UnitOfWork
	sender  Sender
	bus     eventbus.Bus
	logger  *slog.Logger
	metrics observability.Recorder
	now     func() time.Time

	aggregateMu sync.Mutex
	mu          sync.Mutex
	executing   map[uuid.UUID]*sync.Mutex
}

// New creates a payout Engine. bus and metrics may be nil.
func New(
	uow repository.UnitOfWork,
	sender Sender,
	bus eventbus.Bus,
	logger *slog.Logger,
	metrics observability.Recorder,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		uow:       uow,
		sender:    sender,
		bus:       bus,
		logger:    logger.With("service", "payout"),
		metrics:   observability.OrNop(metrics),
		now:       func() time.Time { return time.Now().UTC() },
		executing: make(map[uuid.UUID]*sync.Mutex),
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RecordEarning stores an unbatched earning. An earning with the same type
// and source reference is returned instead of duplicated.
func (e *Engine) RecordEarning(
	ctx context.Context,
	affiliateID uuid.UUID,
	amount money.Amount,
	typ payout.Type,
	sourceRef string,
) (*payout.Payout, error) {
	if sourceRef == "" {
		return nil, fmt.Errorf("%w: earning source reference is required", domain.ErrInvalidInput)
	}
	p, err := payout.NewEarning(affiliateID, amount, typ, sourceRef, e.now())
	if err != nil {
		return nil, err
	}
	var out *payout.Payout
	err = e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		affRepo, err := uow.AffiliateRepository()
		if err != nil {
			return err
		}
		aff, err := affRepo.Get(ctx, affiliateID)
		if err != nil {
			return fmt.Errorf("affiliate %s: %w", affiliateID, err)
		}
		if !aff.Active() {
			return fmt.Errorf("%w: affiliate %s is %s", payout.ErrIneligible, affiliateID, aff.Status)
		}
		repo, err := uow.PayoutRepository()
		if err != nil {
			return err
		}
		existing, err := repo.GetBySource(ctx, typ, sourceRef)
		switch {
		case err == nil:
			out = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if err := repo.CreateEarning(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordPoolShare creates a pool_share earning for an affiliate.
func (e *Engine) RecordPoolShare(ctx context.Context, affiliateID uuid.UUID, amount money.Amount, ref string) (*payout.Payout, error) {
	return e.RecordEarning(ctx, affiliateID, amount, payout.TypePoolShare, ref)
}

// Aggregate builds a pending batch from every unbatched earning before
// periodEnd. The period starts where the latest batch ended, or at the
// oldest earning for the first batch. It returns nil when there is nothing
// to batch.
func (e *Engine) Aggregate(ctx context.Context, periodEnd time.Time) (*payout.Batch, error) {
	e.aggregateMu.Lock()
	defer e.aggregateMu.Unlock()

	if periodEnd.IsZero() {
		periodEnd = e.now()
	}
	periodEnd = periodEnd.UTC()

	var batch *payout.Batch
	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		batchRepo, err := uow.BatchRepository()
		if err != nil {
			return err
		}
		payoutRepo, err := uow.PayoutRepository()
		if err != nil {
			return err
		}
		earnings, err := payoutRepo.ListUnbatched(ctx, periodEnd)
		if err != nil {
			return err
		}
		if len(earnings) == 0 {
			return nil
		}

		var start time.Time
		latest, err := batchRepo.Latest(ctx)
		switch {
		case err == nil:
			start = latest.PeriodEnd
		case errors.Is(err, domain.ErrNotFound):
			start = earnings[0].EarnedAt
		default:
			return err
		}

		b, err := payout.NewBatch(start, periodEnd, earnings, e.now())
		if err != nil {
			return err
		}
		if err := batchRepo.Create(ctx, b); err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(b.Payouts))
		for i, p := range b.Payouts {
			ids[i] = p.ID
		}
		assigned, err := payoutRepo.AssignBatch(ctx, b.ID, ids)
		if err != nil {
			return err
		}
		if assigned != int64(len(ids)) {
			return fmt.Errorf("%w: batch %s claimed %d of %d earnings",
				payout.ErrTotalMismatch, b.ID, assigned, len(ids))
		}
		batch = b
		return nil
	})
	if err != nil {
		e.logger.Error("Aggregate failed", "period_end", periodEnd, "error", err)
		return nil, err
	}
	if batch == nil {
		e.logger.Info("nothing to aggregate", "period_end", periodEnd)
		return nil, nil
	}

	e.metrics.BatchTransition(string(payout.BatchPending))
	e.emit(ctx, events.BatchCreated{
		BatchID:        batch.ID,
		PeriodStart:    batch.PeriodStart,
		PeriodEnd:      batch.PeriodEnd,
		TotalAmount:    batch.TotalAmount,
		AffiliateCount: batch.AffiliateCount,
	})
	e.logger.Info("batch created", "batch_id", batch.ID,
		"period_start", batch.PeriodStart, "period_end", batch.PeriodEnd,
		"total", batch.Total().StringFixed(), "affiliates", batch.AffiliateCount)
	return batch, nil
}

// ApproveBatch authorizes a pending batch. It moves no money.
func (e *Engine) ApproveBatch(ctx context.Context, id uuid.UUID, approverID string) (*payout.Batch, error) {
	var b *payout.Batch
	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		batchRepo, err := uow.BatchRepository()
		if err != nil {
			return err
		}
		if b, err = batchRepo.Get(ctx, id); err != nil {
			return err
		}
		if err := b.Approve(approverID, e.now()); err != nil {
			return err
		}
		if err := batchRepo.Save(ctx, b, payout.BatchPending); err != nil {
			return err
		}
		payoutRepo, err := uow.PayoutRepository()
		if err != nil {
			return err
		}
		return payoutRepo.SetStatusByBatch(ctx, id, payout.StatusApproved)
	})
	if err != nil {
		e.logTransitionError("ApproveBatch", id, err)
		return nil, err
	}
	e.metrics.BatchTransition(string(payout.BatchApproved))
	e.logger.Info("batch approved", "batch_id", id, "approved_by", approverID)
	return b, nil
}

// RejectBatch fails a pending batch without paying it.
func (e *Engine) RejectBatch(ctx context.Context, id uuid.UUID, reason string) (*payout.Batch, error) {
	var b *payout.Batch
	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		batchRepo, err := uow.BatchRepository()
		if err != nil {
			return err
		}
		if b, err = batchRepo.Get(ctx, id); err != nil {
			return err
		}
		if b.Status != payout.BatchPending {
			return fmt.Errorf("%w: batch %s is %s, only pending batches can be rejected",
				domain.ErrInvalidTransition, id, b.Status)
		}
		if err := b.Fail(reason, e.now()); err != nil {
			return err
		}
		if err := batchRepo.Save(ctx, b, payout.BatchPending); err != nil {
			return err
		}
		payoutRepo, err := uow.PayoutRepository()
		if err != nil {
			return err
		}
		return payoutRepo.SetStatusByBatch(ctx, id, payout.StatusFailed)
	})
	if err != nil {
		e.logTransitionError("RejectBatch", id, err)
		return nil, err
	}
	e.metrics.BatchTransition(string(payout.BatchFailed))
	e.emit(ctx, events.BatchFailed{BatchID: id, Reason: reason})
	return b, nil
}

func (e *Engine) batchLock(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.executing[id]
	if !ok {
		l = &sync.Mutex{}
		e.executing[id] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ExecuteBatch pays every unpaid payout of an approved batch from the
// affiliate pool. Each payout is sent under its own id, so a payout paid
// before a failure is not paid again on retry. The first failure fails the
// batch; payouts already settled stay paid.
func (e *Engine) ExecuteBatch(ctx context.Context, id uuid.UUID) (*payout.Batch, error) {
	unlock := e.batchLock(id)
	defer unlock()

	logger := e.logger.With("batch_id", id)
	batchRepo, err := e.uow.BatchRepository()
	if err != nil {
		return nil, err
	}
	b, err := batchRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != payout.BatchApproved {
		err := fmt.Errorf("%w: batch %s is %s, execute requires approved",
			domain.ErrInvalidTransition, id, b.Status)
		logger.Error("ExecuteBatch rejected", "error", err)
		return nil, err
	}

	payoutRepo, err := e.uow.PayoutRepository()
	if err != nil {
		return nil, err
	}
	payouts, err := payoutRepo.ListByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.CheckTotals(payouts); err != nil {
		return e.failBatch(ctx, b, nil, err)
	}

	affRepo, err := e.uow.AffiliateRepository()
	if err != nil {
		return nil, err
	}
	for i := range payouts {
		p := &payouts[i]
		if p.Status == payout.StatusPaid {
			continue
		}
		aff, err := affRepo.Get(ctx, p.AffiliateID)
		if err != nil {
			return e.failBatch(ctx, b, p, fmt.Errorf("affiliate %s: %w", p.AffiliateID, err))
		}
		if !aff.Active() {
			return e.failBatch(ctx, b, p, fmt.Errorf("%w: affiliate %s is %s", payout.ErrIneligible, aff.ID, aff.Status))
		}
		tx, err := e.sender.Send(ctx, transfer.SendRequest{
			ID:     p.ID,
			Pool:   ledger.Affiliate,
			To:     aff.PayoutAddress,
			Amount: p.Amount,
			Reason: fmt.Sprintf("payout batch %s", id),
		})
		if err != nil {
			return e.failBatch(ctx, b, p, err)
		}
		p.Status = payout.StatusPaid
		p.FailureReason = ""
		if tx.SettlementRef != nil {
			p.SettlementRef = *tx.SettlementRef
		}
		p.UpdatedAt = e.now()
		if err := payoutRepo.Update(ctx, p); err != nil {
			logger.Error("payout sent but not marked paid", "payout_id", p.ID, "error", err)
			return nil, err
		}
	}

	if err := b.MarkPaid(e.now()); err != nil {
		return nil, err
	}
	if err := batchRepo.Save(ctx, b, payout.BatchApproved); err != nil {
		logger.Error("failed to mark batch paid", "error", err)
		return nil, err
	}
	b.Payouts = payouts
	e.metrics.BatchTransition(string(payout.BatchPaid))
	e.emit(ctx, events.BatchPaid{BatchID: id, TotalAmount: b.TotalAmount})
	logger.Info("batch paid", "total", b.Total().StringFixed(), "payouts", len(payouts))
	return b, nil
}

func (e *Engine) failBatch(ctx context.Context, b *payout.Batch, failed *payout.Payout, cause error) (*payout.Batch, error) {
	logger := e.logger.With("batch_id", b.ID)
	from := b.Status
	if err := b.Fail(cause.Error(), e.now()); err != nil {
		return nil, err
	}
	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		batchRepo, err := uow.BatchRepository()
		if err != nil {
			return err
		}
		if err := batchRepo.Save(ctx, b, from); err != nil {
			return err
		}
		payoutRepo, err := uow.PayoutRepository()
		if err != nil {
			return err
		}
		if err := payoutRepo.SetStatusByBatch(ctx, b.ID, payout.StatusFailed); err != nil {
			return err
		}
		if failed == nil {
			return nil
		}
		failed.Status = payout.StatusFailed
		failed.FailureReason = cause.Error()
		failed.UpdatedAt = e.now()
		return payoutRepo.Update(ctx, failed)
	})
	if err != nil {
		logger.Error("failed to record batch failure", "cause", cause, "error", err)
		return nil, err
	}
	e.metrics.BatchTransition(string(payout.BatchFailed))
	e.emit(ctx, events.BatchFailed{BatchID: b.ID, Reason: cause.Error()})
	logger.Warn("batch failed", "error", cause)
	return b, fmt.Errorf("batch %s failed: %w", b.ID, cause)
}

// RetryBatch returns a failed batch to pending after checking that every
// unpaid payout's affiliate is still active and the totals still match.
// Unpaid payouts go back to pending; the batch needs approval again.
func (e *Engine) RetryBatch(ctx context.Context, id uuid.UUID) (*payout.Batch, error) {
	unlock := e.batchLock(id)
	defer unlock()

	var b *payout.Batch
	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		batchRepo, err := uow.BatchRepository()
		if err != nil {
			return err
		}
		if b, err = batchRepo.Get(ctx, id); err != nil {
			return err
		}
		if b.Status != payout.BatchFailed {
			return fmt.Errorf("%w: batch %s is %s, retry requires failed",
				domain.ErrInvalidTransition, id, b.Status)
		}
		payoutRepo, err := uow.PayoutRepository()
		if err != nil {
			return err
		}
		payouts, err := payoutRepo.ListByBatch(ctx, id)
		if err != nil {
			return err
		}
		if err := b.CheckTotals(payouts); err != nil {
			return err
		}
		affRepo, err := uow.AffiliateRepository()
		if err != nil {
			return err
		}
		for _, p := range payouts {
			if p.Status == payout.StatusPaid {
				continue
			}
			aff, err := affRepo.Get(ctx, p.AffiliateID)
			if err != nil {
				return fmt.Errorf("affiliate %s: %w", p.AffiliateID, err)
			}
			if !aff.Active() {
				return fmt.Errorf("%w: affiliate %s is %s", payout.ErrIneligible, aff.ID, aff.Status)
			}
		}
		if err := b.Reset(e.now()); err != nil {
			return err
		}
		if err := batchRepo.Save(ctx, b, payout.BatchFailed); err != nil {
			return err
		}
		return payoutRepo.SetStatusByBatch(ctx, id, payout.StatusPending)
	})
	if err != nil {
		e.logTransitionError("RetryBatch", id, err)
		return nil, err
	}
	e.metrics.BatchTransition(string(payout.BatchPending))
	e.logger.Info("batch reset for retry", "batch_id", id)
	return b, nil
}

// ListBatches returns batches, newest period first.
func (e *Engine) ListBatches(ctx context.Context, status *payout.BatchStatus) ([]payout.Batch, error) {
	repo, err := e.uow.BatchRepository()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, status)
}

// GetBatch returns a batch with its payouts.
func (e *Engine) GetBatch(ctx context.Context, id uuid.UUID) (*payout.Batch, error) {
	batchRepo, err := e.uow.BatchRepository()
	if err != nil {
		return nil, err
	}
	b, err := batchRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payoutRepo, err := e.uow.PayoutRepository()
	if err != nil {
		return nil, err
	}
	if b.Payouts, err = payoutRepo.ListByBatch(ctx, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) logTransitionError(op string, id uuid.UUID, err error) {
	if errors.Is(err, domain.ErrInvalidTransition) {
		e.logger.Error(op+" rejected", "batch_id", id, "error", err)
		return
	}
	e.logger.Warn(op+" failed", "batch_id", id, "error", err)
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Emit(ctx, ev); err != nil {
		e.logger.Warn("failed to emit event", "type", ev.Type(), "error", err)
	}
}
