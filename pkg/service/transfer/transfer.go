// Package transfer moves money out of the treasury pools.
//
// Operator transfers go through a two-phase flow: Initiate and Review have no
// external effect and can be abandoned; Confirm dispatches to the settlement
// rail and can only end settled or failed. Send is the shared money path for
// operator transfers, payout execution and comp settlement.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/transfer"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/observability"
	"github.com/amirasaad/treasury/pkg/provider"
	"github.com/amirasaad/treasury/pkg/repository"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	"github.com/google/uuid"
)

// ErrReconcileRequired is returned when the rail accepted a transfer but the
// ledger commit failed. The reservation stays held until Reconcile or a
// retry of the same request commits it.
var ErrReconcileRequired = errors.New("transfer sent but not recorded, reconcile required")

// Config holds the transfer service settings.
type Config struct {
	RailTimeout        time.Duration
	ConfirmationPhrase string
}

// Service runs operator transfers and internal sends.
type Service struct {
	uow     repository.UnitOfWork
	store   *ledgersvc.Store
	rail    provider.SettlementRail
	bus     eventbus.Bus
	cfg     Config
	logger  *slog.Logger
	metrics observability.Recorder
	now     func() time.Time
}

// New creates a transfer Service. bus and metrics may be nil.
func New(
	uow repository.UnitOfWork,
	store *ledgersvc.Store,
	rail provider.SettlementRail,
	bus eventbus.Bus,
	cfg Config,
	logger *slog.Logger,
	metrics observability.Recorder,
) *Service {
	if cfg.RailTimeout <= 0 {
		cfg.RailTimeout = 30 * time.Second
	}
	if cfg.ConfirmationPhrase == "" {
		cfg.ConfirmationPhrase = "CONFIRM"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:     uow,
		store:   store,
		rail:    rail,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With("service", "transfer"),
		metrics: observability.OrNop(metrics),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// InitiateRequest is an operator's transfer request.
type InitiateRequest struct {
	Pool     ledger.PoolName
	To       string
	Amount   money.Amount
	Reason   string
	Operator string
}

// Initiate validates a transfer and records it as validated. The address is
// checked before the balance.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*transfer.PendingTransfer, error) {
	if strings.TrimSpace(req.Operator) == "" {
		return nil, fmt.Errorf("%w: operator identity is required", domain.ErrUnauthorized)
	}
	if err := transfer.ValidateAddress(req.To); err != nil {
		return nil, err
	}
	if _, err := ledger.ParsePoolName(string(req.Pool)); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: got %s", ledger.ErrInvalidAmount, money.FormatAmount(req.Amount, money.USDT))
	}
	avail, err := s.store.Available(ctx, req.Pool, money.USDT)
	if err != nil {
		return nil, err
	}
	if req.Amount > avail.Amount() {
		return nil, fmt.Errorf("%w: pool %s has %s USDT available, %s requested",
			domain.ErrInsufficientBalance, req.Pool, avail.StringFixed(),
			money.FormatAmount(req.Amount, money.USDT))
	}

	now := s.now()
	t := &transfer.PendingTransfer{
		ID:          uuid.New(),
		Pool:        req.Pool,
		ToAddress:   transfer.NormalizeAddress(req.To),
		Amount:      req.Amount,
		Reason:      req.Reason,
		Status:      transfer.StatusValidated,
		InitiatedBy: req.Operator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	repo, err := s.uow.TransferRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("transfer initiated", "transfer_id", t.ID, "pool", t.Pool,
		"to", t.ToAddress, "amount", t.Money().StringFixed(), "operator", req.Operator)
	return t, nil
}

// Review moves a validated transfer to reviewed and returns what the
// operator must see before confirming. Reviewing twice returns the payload
// again.
func (s *Service) Review(ctx context.Context, id uuid.UUID) (*transfer.ReviewPayload, error) {
	repo, err := s.uow.TransferRepository()
	if err != nil {
		return nil, err
	}
	t, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != transfer.StatusReviewed {
		if err := t.Transition(transfer.StatusReviewed, s.now()); err != nil {
			s.logger.Error("invalid transfer transition", "transfer_id", id, "error", err)
			return nil, err
		}
		if err := repo.Save(ctx, t, transfer.StatusValidated); err != nil {
			return nil, err
		}
	}

	pool, err := s.store.GetPool(ctx, t.Pool)
	if err != nil {
		return nil, err
	}
	avail, err := s.store.Available(ctx, t.Pool, money.USDT)
	if err != nil {
		return nil, err
	}
	return &transfer.ReviewPayload{
		TransferID:         t.ID,
		From:               t.Pool,
		FromAddress:        pool.CustodyAddress,
		To:                 t.ToAddress,
		Amount:             t.Money(),
		Reason:             t.Reason,
		AvailableBalance:   avail,
		ConfirmationPhrase: s.cfg.ConfirmationPhrase,
	}, nil
}

// Confirm checks the typed acknowledgement and dispatches a reviewed
// transfer. A settlement failure is recorded on the transfer and returned.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, acknowledgement, operator string) (*transfer.PendingTransfer, error) {
	if strings.TrimSpace(operator) == "" {
		return nil, fmt.Errorf("%w: operator identity is required", domain.ErrUnauthorized)
	}
	repo, err := s.uow.TransferRepository()
	if err != nil {
		return nil, err
	}
	t, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("transfer_id", id, "operator", operator)
	if t.Status != transfer.StatusReviewed {
		err := fmt.Errorf("%w: transfer %s is %s, confirm requires reviewed",
			domain.ErrInvalidTransition, id, t.Status)
		logger.Error("confirm rejected", "error", err)
		return nil, err
	}
	if acknowledgement != s.cfg.ConfirmationPhrase {
		return nil, fmt.Errorf("%w: type %q to confirm", transfer.ErrAcknowledgementMismatch, s.cfg.ConfirmationPhrase)
	}

	if err := t.Transition(transfer.StatusDispatched, s.now()); err != nil {
		return nil, err
	}
	t.ConfirmedBy = operator
	if err := repo.Save(ctx, t, transfer.StatusReviewed); err != nil {
		logger.Error("confirm lost race", "error", err)
		return nil, err
	}

	tx, sendErr := s.Send(ctx, SendRequest{
		ID:     t.ID,
		Pool:   t.Pool,
		To:     t.ToAddress,
		Amount: t.Amount,
		Reason: t.Reason,
	})
	if errors.Is(sendErr, ErrReconcileRequired) {
		logger.Error("transfer left dispatched", "error", sendErr)
		return t, sendErr
	}

	if sendErr != nil {
		_ = t.Transition(transfer.StatusFailed, s.now())
		t.FailureReason = sendErr.Error()
	} else {
		_ = t.Transition(transfer.StatusSettled, s.now())
		t.SettlementRef = deref(tx.SettlementRef)
	}
	if err := repo.Save(ctx, t, transfer.StatusDispatched); err != nil {
		logger.Error("failed to record transfer outcome", "error", err)
		return nil, err
	}

	if sendErr != nil {
		s.emit(ctx, events.TransferFailed{ID: t.ID, Pool: string(t.Pool), Reason: t.FailureReason})
		return t, sendErr
	}
	s.emit(ctx, events.TransferSettled{
		ID:            t.ID,
		Pool:          string(t.Pool),
		ToAddress:     t.ToAddress,
		Amount:        t.Amount,
		SettlementRef: t.SettlementRef,
	})
	logger.Info("transfer settled", "settlement_ref", t.SettlementRef)
	return t, nil
}

// Abandon cancels a transfer that has not been confirmed.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID) (*transfer.PendingTransfer, error) {
	repo, err := s.uow.TransferRepository()
	if err != nil {
		return nil, err
	}
	t, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := t.Status
	if err := t.Transition(transfer.StatusAbandoned, s.now()); err != nil {
		s.logger.Error("invalid transfer transition", "transfer_id", id, "error", err)
		return nil, err
	}
	if err := repo.Save(ctx, t, from); err != nil {
		return nil, err
	}
	s.logger.Info("transfer abandoned", "transfer_id", id)
	return t, nil
}

// Get returns one transfer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transfer.PendingTransfer, error) {
	repo, err := s.uow.TransferRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

// List returns transfers, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *transfer.Status) ([]transfer.PendingTransfer, error) {
	repo, err := s.uow.TransferRepository()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, status)
}

// SendRequest is an internal outbound transfer. ID is the idempotency key
// for both the rail and the ledger row.
type SendRequest struct {
	ID     uuid.UUID
	Pool   ledger.PoolName
	To     string
	Asset  money.Code
	Amount money.Amount
	Reason string
}

// Send reserves the amount, calls the rail with no lock held, and commits
// the outbound ledger row. A rail failure releases the reservation and
// returns ErrSettlementFailed with the ledger unchanged. Repeating a
// request whose row is already committed returns that row.
func (s *Service) Send(ctx context.Context, req SendRequest) (*ledger.Transaction, error) {
	if req.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: send id is required", domain.ErrInvalidInput)
	}
	if req.Asset == "" {
		req.Asset = money.USDT
	}
	if err := transfer.ValidateAddress(req.To); err != nil {
		return nil, err
	}
	pool, err := s.store.GetPool(ctx, req.Pool)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("send_id", req.ID, "pool", req.Pool)

	if tx, err := s.store.GetTransaction(ctx, req.ID); err == nil {
		logger.Info("send already committed")
		return tx, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	to := transfer.NormalizeAddress(req.To)
	if _, err := s.store.Reserve(ctx, ledgersvc.ReserveRequest{
		ID:           req.ID,
		Pool:         req.Pool,
		Asset:        req.Asset,
		Amount:       req.Amount,
		Counterparty: to,
		Reason:       req.Reason,
	}); err != nil {
		return nil, err
	}

	start := time.Now()
	railCtx, cancel := context.WithTimeout(ctx, s.cfg.RailTimeout)
	result, err := s.rail.Send(railCtx, provider.SendParams{
		IdempotencyKey: req.ID.String(),
		From:           pool.CustodyAddress,
		To:             to,
		Asset:          req.Asset,
		Amount:         req.Amount,
	})
	cancel()
	s.metrics.Settlement(string(req.Pool), err == nil, time.Since(start))
	if err != nil {
		logger.Warn("rail send failed", "error", err)
		if relErr := s.store.Release(ctx, req.ID); relErr != nil {
			logger.Error("failed to release reservation", "error", relErr)
		}
		return nil, fmt.Errorf("%w: pool %s to %s: %v", domain.ErrSettlementFailed, req.Pool, to, err)
	}

	tx, err := s.store.Commit(ctx, req.ID, result.Ref)
	if err != nil {
		logger.Error("rail settled but commit failed", "settlement_ref", result.Ref, "error", err)
		return nil, fmt.Errorf("%w: id %s ref %s: %v", ErrReconcileRequired, req.ID, result.Ref, err)
	}
	logger.Info("send settled", "to", to, "amount", money.FormatAmount(req.Amount, req.Asset),
		"settlement_ref", result.Ref)
	return tx, nil
}

// Reconcile commits a held reservation with the rail's reference and marks
// the matching operator transfer settled.
func (s *Service) Reconcile(ctx context.Context, id uuid.UUID, settlementRef string) (*ledger.Transaction, error) {
	tx, err := s.store.Reconcile(ctx, id, settlementRef)
	if err != nil {
		return nil, err
	}
	repo, err := s.uow.TransferRepository()
	if err != nil {
		return nil, err
	}
	t, err := repo.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return tx, nil
	case err != nil:
		return nil, err
	}
	if t.Status == transfer.StatusDispatched {
		_ = t.Transition(transfer.StatusSettled, s.now())
		t.SettlementRef = deref(tx.SettlementRef)
		if err := repo.Save(ctx, t, transfer.StatusDispatched); err != nil {
			return nil, err
		}
		s.emit(ctx, events.TransferSettled{
			ID:            t.ID,
			Pool:          string(t.Pool),
			ToAddress:     t.ToAddress,
			Amount:        t.Amount,
			SettlementRef: t.SettlementRef,
		})
	}
	return tx, nil
}

func (s *Service) emit(ctx context.Context, e events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Emit(ctx, e); err != nil {
		s.logger.Warn("failed to emit event", "type", e.Type(), "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
