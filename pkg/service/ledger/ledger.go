// Package ledger provides the Ledger Store: the only way balances are read
// and the only writer of the append-only pool transaction log.
//
// Outbound money leaves in two steps. Reserve checks the available balance
// under the pool lock and earmarks the amount; the caller then talks to the
// settlement rail with no lock held and finishes with Commit or Release.
// Reconcile commits a reservation whose rail call succeeded but whose commit
// never happened.
package ledger

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
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/observability"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/amirasaad/treasury/pkg/service/allocator"
	"github.com/google/uuid"
)

// proceedsNamespace derives the ids of the inbound transactions of one
// proceeds reference, so a replayed webhook writes nothing new.
var proceedsNamespace = uuid.MustParse("6f1c2a9e-3d1b-4b8e-9a57-0c4e2f7d5a10")

// Store records pool transactions and derives balances.
type Store struct {
	uow     repository.UnitOfWork
	bus     eventbus.Bus
	logger  *slog.Logger
	metrics observability.Recorder
	now     func() time.Time

	mu    sync.Mutex
	locks map[ledger.PoolName]*sync.Mutex
}

// New creates a Store. bus and metrics may be nil.
func New(
	uow repository.UnitOfWork,
	bus eventbus.Bus,
	logger *slog.Logger,
	metrics observability.Recorder,
) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		uow:     uow,
		bus:     bus,
		logger:  logger.With("service", "ledger"),
		metrics: observability.OrNop(metrics),
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[ledger.PoolName]*sync.Mutex),
	}
}

// WithClock replaces the time source. Tests use it to write history.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) lock(pool ledger.PoolName) func() {
	s.mu.Lock()
	l, ok := s.locks[pool]
	if !ok {
		l = &sync.Mutex{}
		s.locks[pool] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// PoolBalance is a pool with its derived balances.
type PoolBalance struct {
	Pool      ledger.Pool
	Balance   ledger.Balance
	Held      money.Money
	Available money.Money
}

// SyncPools validates the allocation table and upserts every pool by name.
func (s *Store) SyncPools(ctx context.Context, pools []ledger.Pool) error {
	if _, err := allocator.New(pools); err != nil {
		return err
	}
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.PoolRepository()
		if err != nil {
			return err
		}
		for _, p := range pools {
			if err := repo.Upsert(ctx, p); err != nil {
				return fmt.Errorf("upsert pool %s: %w", p.Name, err)
			}
		}
		s.logger.Info("pools synced", "count", len(pools))
		return nil
	})
}

// GetPool returns a pool or ErrInvalidPool.
func (s *Store) GetPool(ctx context.Context, name ledger.PoolName) (*ledger.Pool, error) {
	repo, err := s.uow.PoolRepository()
	if err != nil {
		return nil, err
	}
	return getPool(ctx, repo, name)
}

func getPool(ctx context.Context, repo repository.PoolRepository, name ledger.PoolName) (*ledger.Pool, error) {
	p, err := repo.Get(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w %q", ledger.ErrInvalidPool, name)
	}
	return p, err
}

// GetBalance folds the pool's transactions with createdAt <= asOf. A nil
// asOf means now.
func (s *Store) GetBalance(ctx context.Context, pool ledger.PoolName, asOf *time.Time) (ledger.Balance, error) {
	at := s.now()
	if asOf != nil {
		at = asOf.UTC()
	}
	if _, err := s.GetPool(ctx, pool); err != nil {
		return ledger.Balance{}, err
	}
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return ledger.Balance{}, err
	}
	sums, err := repo.SumByAsset(ctx, pool, at)
	if err != nil {
		return ledger.Balance{}, err
	}
	return ledger.NewBalance(pool, sums, at), nil
}

// Available returns the balance of asset minus the amounts held by open
// reservations.
func (s *Store) Available(ctx context.Context, pool ledger.PoolName, asset money.Code) (money.Money, error) {
	var out money.Money
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		poolRepo, err := uow.PoolRepository()
		if err != nil {
			return err
		}
		if _, err := getPool(ctx, poolRepo, pool); err != nil {
			return err
		}
		amt, err := available(ctx, uow, pool, asset, s.now())
		out = money.FromSmallestUnit(amt, asset.ToCurrency())
		return err
	})
	return out, err
}

func available(
	ctx context.Context,
	uow repository.UnitOfWork,
	pool ledger.PoolName,
	asset money.Code,
	at time.Time,
) (money.Amount, error) {
	ledgerRepo, err := uow.LedgerRepository()
	if err != nil {
		return 0, err
	}
	resRepo, err := uow.ReservationRepository()
	if err != nil {
		return 0, err
	}
	sums, err := ledgerRepo.SumByAsset(ctx, pool, at)
	if err != nil {
		return 0, err
	}
	held, err := resRepo.SumHeld(ctx, pool, asset)
	if err != nil {
		return 0, err
	}
	return sums[asset] - held, nil
}

// ListPools returns every pool with its balances.
func (s *Store) ListPools(ctx context.Context) ([]PoolBalance, error) {
	poolRepo, err := s.uow.PoolRepository()
	if err != nil {
		return nil, err
	}
	pools, err := poolRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	ledgerRepo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	resRepo, err := s.uow.ReservationRepository()
	if err != nil {
		return nil, err
	}
	at := s.now()
	out := make([]PoolBalance, 0, len(pools))
	for _, p := range pools {
		sums, err := ledgerRepo.SumByAsset(ctx, p.Name, at)
		if err != nil {
			return nil, err
		}
		held, err := resRepo.SumHeld(ctx, p.Name, money.USDT)
		if err != nil {
			return nil, err
		}
		bal := ledger.NewBalance(p.Name, sums, at)
		out = append(out, PoolBalance{
			Pool:      p,
			Balance:   bal,
			Held:      money.FromSmallestUnit(held, money.USDTCurrency),
			Available: money.FromSmallestUnit(sums[money.USDT]-held, money.USDTCurrency),
		})
	}
	return out, nil
}

// ListTransactions pages through the log, newest first.
func (s *Store) ListTransactions(
	ctx context.Context,
	filter ledger.TransactionFilter,
) ([]ledger.Transaction, int64, error) {
	filter = filter.Normalize()
	if filter.Pool != "" {
		if _, err := ledger.ParsePoolName(string(filter.Pool)); err != nil {
			return nil, 0, err
		}
	}
	if filter.Direction != "" {
		if _, err := ledger.ParseDirection(string(filter.Direction)); err != nil {
			return nil, 0, err
		}
	}
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, 0, err
	}
	return repo.List(ctx, filter)
}

// GetTransaction returns one ledger row.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

// RecordTransaction appends tx. Outbound writes are checked against the
// available balance under the pool lock. Re-recording an id with the same
// content returns the stored row; different content is a conflict.
func (s *Store) RecordTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.Transaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	logger := s.logger.With("tx_id", tx.ID, "pool", tx.Pool, "direction", tx.Direction)

	unlock := s.lock(tx.Pool)
	defer unlock()

	var stored *ledger.Transaction
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		poolRepo, err := uow.PoolRepository()
		if err != nil {
			return err
		}
		if _, err := getPool(ctx, poolRepo, tx.Pool); err != nil {
			return err
		}
		if err := poolRepo.Lock(ctx, tx.Pool); err != nil {
			return err
		}
		if existing, done, err := existingTransaction(ctx, uow, tx); done || err != nil {
			stored = existing
			return err
		}
		if tx.Direction == ledger.Out {
			avail, err := available(ctx, uow, tx.Pool, tx.Asset, tx.CreatedAt)
			if err != nil {
				return err
			}
			if tx.Amount > avail {
				return insufficient(tx.Pool, tx.Asset, avail, tx.Amount)
			}
		}
		stored, err = appendTransaction(ctx, uow, tx)
		return err
	})
	if err != nil {
		logger.Error("RecordTransaction failed", "error", err)
		return nil, err
	}
	s.metrics.LedgerWrite(string(tx.Pool), string(tx.Direction))
	logger.Info("transaction recorded", "amount", tx.Money().String())
	return stored, nil
}

// existingTransaction reports whether tx.ID is already in the log. done is
// true when the stored row should be returned as is.
func existingTransaction(
	ctx context.Context,
	uow repository.UnitOfWork,
	tx *ledger.Transaction,
) (*ledger.Transaction, bool, error) {
	repo, err := uow.LedgerRepository()
	if err != nil {
		return nil, false, err
	}
	existing, err := repo.Get(ctx, tx.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !existing.SameContent(*tx) {
		return nil, false, fmt.Errorf("%w: %s", ledger.ErrTransactionConflict, tx.ID)
	}
	return existing, true, nil
}

func appendTransaction(ctx context.Context, uow repository.UnitOfWork, tx *ledger.Transaction) (*ledger.Transaction, error) {
	repo, err := uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Append(ctx, tx); err != nil {
		return nil, err
	}
	out := *tx
	return &out, nil
}

func insufficient(pool ledger.PoolName, asset money.Code, avail, want money.Amount) error {
	return fmt.Errorf("%w: pool %s has %s %s available, %s requested",
		domain.ErrInsufficientBalance, pool,
		money.FormatAmount(avail, asset), asset,
		money.FormatAmount(want, asset))
}

// ProceedsResult reports how one proceeds reference was split.
type ProceedsResult struct {
	Ref          string
	Allocation   allocator.Allocation
	Transactions []ledger.Transaction
}

// ReceiveProceeds allocates gross USDT proceeds across the pools and writes
// one inbound transaction per credited pool. The transaction ids derive from
// ref, so replaying the same ref is a no-op.
func (s *Store) ReceiveProceeds(ctx context.Context, ref string, gross money.Amount) (*ProceedsResult, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: proceeds reference is required", domain.ErrInvalidInput)
	}
	poolRepo, err := s.uow.PoolRepository()
	if err != nil {
		return nil, err
	}
	pools, err := poolRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	alloc, err := allocator.New(pools)
	if err != nil {
		return nil, err
	}
	split, err := alloc.Allocate(gross)
	if err != nil {
		return nil, err
	}

	at := s.now()
	result := &ProceedsResult{Ref: ref, Allocation: split}
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		for _, p := range ledger.PoolNames {
			credit, ok := split.Credits[p]
			if !ok || credit <= 0 {
				continue
			}
			tx, err := ledger.NewTransaction().
				WithID(uuid.NewSHA1(proceedsNamespace, []byte(ref+":"+string(p)))).
				WithPool(p).
				Inbound(credit).
				WithSettlementRef(ref).
				WithReason("proceeds allocation").
				At(at).
				Build()
			if err != nil {
				return err
			}
			existing, done, err := existingTransaction(ctx, uow, tx)
			if err != nil {
				return err
			}
			if !done {
				if existing, err = appendTransaction(ctx, uow, tx); err != nil {
					return err
				}
			}
			result.Transactions = append(result.Transactions, *existing)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("ReceiveProceeds failed", "ref", ref, "error", err)
		return nil, err
	}

	credits := make(map[string]int64, len(split.Credits))
	for p, c := range split.Credits {
		credits[string(p)] = c
		s.metrics.LedgerWrite(string(p), string(ledger.In))
	}
	if s.bus != nil {
		if err := s.bus.Emit(ctx, events.ProceedsAllocated{Ref: ref, Gross: gross, Credits: credits}); err != nil {
			s.logger.Warn("failed to emit ProceedsAllocated", "ref", ref, "error", err)
		}
	}
	s.logger.Info("proceeds allocated", "ref", ref, "gross", money.FormatAmount(gross, money.USDT),
		"retained", money.FormatAmount(split.Retained, money.USDT))
	return result, nil
}

// ReserveRequest describes an outbound amount to hold.
type ReserveRequest struct {
	ID           uuid.UUID
	Pool         ledger.PoolName
	Asset        money.Code
	Amount       money.Amount
	Counterparty string
	Reason       string
}

// Reserve holds an outbound amount against the pool's available balance. A
// held reservation with the same id is returned unchanged; a released one is
// held again if the balance still allows it.
func (s *Store) Reserve(ctx context.Context, req ReserveRequest) (*ledger.Reservation, error) {
	if req.Asset == "" {
		req.Asset = money.USDT
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: got %s for pool %s", ledger.ErrInvalidAmount,
			money.FormatAmount(req.Amount, req.Asset), req.Pool)
	}
	if !req.Asset.IsTracked() {
		return nil, fmt.Errorf("%w %q", ledger.ErrInvalidAsset, req.Asset)
	}
	logger := s.logger.With("reservation_id", req.ID, "pool", req.Pool)

	unlock := s.lock(req.Pool)
	defer unlock()

	var res *ledger.Reservation
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		poolRepo, err := uow.PoolRepository()
		if err != nil {
			return err
		}
		if _, err := getPool(ctx, poolRepo, req.Pool); err != nil {
			return err
		}
		if err := poolRepo.Lock(ctx, req.Pool); err != nil {
			return err
		}
		resRepo, err := uow.ReservationRepository()
		if err != nil {
			return err
		}

		now := s.now()
		existing, err := resRepo.Get(ctx, req.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			existing = nil
		case err != nil:
			return err
		case existing.Status == ledger.ReservationHeld:
			res = existing
			return nil
		case existing.Status == ledger.ReservationCommitted:
			return fmt.Errorf("%w: reservation %s already committed", domain.ErrAlreadyExists, req.ID)
		}

		avail, err := available(ctx, uow, req.Pool, req.Asset, now)
		if err != nil {
			return err
		}
		if req.Amount > avail {
			return insufficient(req.Pool, req.Asset, avail, req.Amount)
		}

		if existing != nil {
			won, err := resRepo.Transition(ctx, req.ID, ledger.ReservationReleased, ledger.ReservationHeld, now)
			if err != nil {
				return err
			}
			if !won {
				return fmt.Errorf("%w: reservation %s changed concurrently", ledger.ErrReservationNotHeld, req.ID)
			}
			existing.Status = ledger.ReservationHeld
			existing.UpdatedAt = now
			res = existing
			return nil
		}

		res = &ledger.Reservation{
			ID:                  req.ID,
			Pool:                req.Pool,
			Asset:               req.Asset,
			Amount:              req.Amount,
			CounterpartyAddress: req.Counterparty,
			Reason:              req.Reason,
			Status:              ledger.ReservationHeld,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		return resRepo.Create(ctx, res)
	})
	if err != nil {
		logger.Warn("Reserve failed", "error", err)
		return nil, err
	}
	logger.Debug("amount reserved", "amount", money.FormatAmount(res.Amount, res.Asset))
	return res, nil
}

// Commit turns a held reservation into its outbound ledger transaction.
// Committing an already committed reservation returns its transaction.
func (s *Store) Commit(ctx context.Context, id uuid.UUID, settlementRef string) (*ledger.Transaction, error) {
	res, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(res.Pool)
	defer unlock()

	var tx *ledger.Transaction
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		poolRepo, err := uow.PoolRepository()
		if err != nil {
			return err
		}
		if err := poolRepo.Lock(ctx, res.Pool); err != nil {
			return err
		}
		resRepo, err := uow.ReservationRepository()
		if err != nil {
			return err
		}
		ledgerRepo, err := uow.LedgerRepository()
		if err != nil {
			return err
		}

		now := s.now()
		won, err := resRepo.Transition(ctx, id, ledger.ReservationHeld, ledger.ReservationCommitted, now)
		if err != nil {
			return err
		}
		if !won {
			if committed, err := ledgerRepo.Get(ctx, id); err == nil {
				tx = committed
				return nil
			}
			return fmt.Errorf("%w: %s", ledger.ErrReservationNotHeld, id)
		}
		tx, err = res.Transaction(settlementRef, now)
		if err != nil {
			return err
		}
		return ledgerRepo.Append(ctx, tx)
	})
	if err != nil {
		s.logger.Error("Commit failed", "reservation_id", id, "error", err)
		return nil, err
	}
	s.metrics.LedgerWrite(string(tx.Pool), string(tx.Direction))
	s.logger.Info("reservation committed", "reservation_id", id, "pool", tx.Pool,
		"amount", tx.Money().String(), "settlement_ref", settlementRef)
	return tx, nil
}

// Release drops a held reservation. Releasing twice is a no-op.
func (s *Store) Release(ctx context.Context, id uuid.UUID) error {
	repo, err := s.uow.ReservationRepository()
	if err != nil {
		return err
	}
	won, err := repo.Transition(ctx, id, ledger.ReservationHeld, ledger.ReservationReleased, s.now())
	if err != nil {
		return err
	}
	if won {
		s.logger.Info("reservation released", "reservation_id", id)
		return nil
	}
	res, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if res.Status == ledger.ReservationReleased {
		return nil
	}
	return fmt.Errorf("%w: reservation %s is %s", ledger.ErrReservationNotHeld, id, res.Status)
}

// Reconcile commits a held reservation with the reference the rail reported
// for it, closing the window where the rail settled but the ledger commit
// did not happen.
func (s *Store) Reconcile(ctx context.Context, id uuid.UUID, settlementRef string) (*ledger.Transaction, error) {
	if settlementRef == "" {
		return nil, fmt.Errorf("%w: settlement reference is required", domain.ErrInvalidInput)
	}
	res, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == ledger.ReservationReleased {
		return nil, fmt.Errorf("%w: reservation %s was released", ledger.ErrReservationNotHeld, id)
	}
	s.logger.Warn("reconciling reservation", "reservation_id", id, "pool", res.Pool, "settlement_ref", settlementRef)
	return s.Commit(ctx, id, settlementRef)
}

// ListHeld returns reservations awaiting commit or release.
func (s *Store) ListHeld(ctx context.Context) ([]ledger.Reservation, error) {
	repo, err := s.uow.ReservationRepository()
	if err != nil {
		return nil, err
	}
	return repo.ListHeld(ctx)
}

func (s *Store) getReservation(ctx context.Context, id uuid.UUID) (*ledger.Reservation, error) {
	repo, err := s.uow.ReservationRepository()
	if err != nil {
		return nil, err
	}
	res, err := repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", id, err)
	}
	return res, nil
}

// PreviewAllocation splits gross with the current pool table without
// writing anything.
func (s *Store) PreviewAllocation(ctx context.Context, gross money.Amount) (allocator.Allocation, error) {
	poolRepo, err := s.uow.PoolRepository()
	if err != nil {
		return allocator.Allocation{}, err
	}
	pools, err := poolRepo.List(ctx)
	if err != nil {
		return allocator.Allocation{}, err
	}
	alloc, err := allocator.New(pools)
	if err != nil {
		return allocator.Allocation{}, err
	}
	return alloc.Allocate(gross)
}
