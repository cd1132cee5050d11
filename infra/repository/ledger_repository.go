package repository

import (
	"context"
	"time"

	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository returns the GORM ledger repository.
func NewLedgerRepository(db *gorm.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Append(ctx context.Context, tx *ledger.Transaction) error {
	m := LedgerTransaction{
		ID:                  tx.ID,
		PoolName:            string(tx.Pool),
		Asset:               string(tx.Asset),
		Direction:           string(tx.Direction),
		Amount:              tx.Amount,
		CounterpartyAddress: tx.CounterpartyAddress,
		SettlementRef:       tx.SettlementRef,
		Reason:              tx.Reason,
		CreatedAt:           tx.CreatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *ledgerRepository) Get(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	var m LedgerTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	tx := toLedgerTransaction(m)
	return &tx, nil
}

func (r *ledgerRepository) SumByAsset(
	ctx context.Context,
	pool ledger.PoolName,
	asOf time.Time,
) (map[money.Code]money.Amount, error) {
	var rows []struct {
		Asset string
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&LedgerTransaction{}).
		Select("asset, COALESCE(SUM(CASE WHEN direction = 'in' THEN amount ELSE -amount END), 0) AS total").
		Where("pool_name = ? AND created_at <= ?", string(pool), asOf).
		Group("asset").
		Scan(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	sums := make(map[money.Code]money.Amount, len(rows))
	for _, row := range rows {
		sums[money.Code(row.Asset)] = row.Total
	}
	return sums, nil
}

func (r *ledgerRepository) List(
	ctx context.Context,
	filter ledger.TransactionFilter,
) ([]ledger.Transaction, int64, error) {
	filter = filter.Normalize()
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&LedgerTransaction{})
		if filter.Pool != "" {
			q = q.Where("pool_name = ?", string(filter.Pool))
		}
		if filter.Direction != "" {
			q = q.Where("direction = ?", string(filter.Direction))
		}
		return q
	}
	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, MapGormErrorToDomain(err)
	}
	var rows []LedgerTransaction
	err := scoped().Order("created_at DESC").Order("id").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, MapGormErrorToDomain(err)
	}
	out := make([]ledger.Transaction, len(rows))
	for i, m := range rows {
		out[i] = toLedgerTransaction(m)
	}
	return out, total, nil
}

func toLedgerTransaction(m LedgerTransaction) ledger.Transaction {
	return ledger.Transaction{
		ID:                  m.ID,
		Pool:                ledger.PoolName(m.PoolName),
		Asset:               money.Code(m.Asset),
		Direction:           ledger.Direction(m.Direction),
		Amount:              m.Amount,
		CounterpartyAddress: m.CounterpartyAddress,
		SettlementRef:       m.SettlementRef,
		Reason:              m.Reason,
		CreatedAt:           m.CreatedAt,
	}
}

type poolRepository struct {
	db *gorm.DB
}

// NewPoolRepository returns the GORM pool repository.
func NewPoolRepository(db *gorm.DB) repository.PoolRepository {
	return &poolRepository{db: db}
}

func (r *poolRepository) Upsert(ctx context.Context, pool ledger.Pool) error {
	m := Pool{
		Name:           string(pool.Name),
		CustodyAddress: pool.CustodyAddress,
		AllocationBps:  pool.AllocationBps,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"custody_address", "allocation_bps", "updated_at"}),
		}).Create(&m).Error
	})
}

func (r *poolRepository) Get(ctx context.Context, name ledger.PoolName) (*ledger.Pool, error) {
	var m Pool
	if err := r.db.WithContext(ctx).Where("name = ?", string(name)).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	p := toPool(m)
	return &p, nil
}

func (r *poolRepository) List(ctx context.Context) ([]ledger.Pool, error) {
	var rows []Pool
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]ledger.Pool, len(rows))
	for i, m := range rows {
		out[i] = toPool(m)
	}
	return out, nil
}

// Lock issues SELECT ... FOR UPDATE on the pool row. SQLite has no row
// locks and serializes writers on its own, so the clause is skipped there.
func (r *poolRepository) Lock(ctx context.Context, name ledger.PoolName) error {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m Pool
	return MapGormErrorToDomain(q.Where("name = ?", string(name)).Take(&m).Error)
}

func toPool(m Pool) ledger.Pool {
	return ledger.Pool{
		Name:           ledger.PoolName(m.Name),
		CustodyAddress: m.CustodyAddress,
		AllocationBps:  m.AllocationBps,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository returns the GORM reservation repository.
func NewReservationRepository(db *gorm.DB) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, res *ledger.Reservation) error {
	m := Reservation{
		ID:                  res.ID,
		PoolName:            string(res.Pool),
		Asset:               string(res.Asset),
		Amount:              res.Amount,
		CounterpartyAddress: res.CounterpartyAddress,
		Reason:              res.Reason,
		Status:              string(res.Status),
		CreatedAt:           res.CreatedAt,
		UpdatedAt:           res.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *reservationRepository) Get(ctx context.Context, id uuid.UUID) (*ledger.Reservation, error) {
	var m Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	res := toReservation(m)
	return &res, nil
}

func (r *reservationRepository) SumHeld(
	ctx context.Context,
	pool ledger.PoolName,
	asset money.Code,
) (money.Amount, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&Reservation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("pool_name = ? AND asset = ? AND status = ?",
			string(pool), string(asset), string(ledger.ReservationHeld)).
		Scan(&total).Error
	return total, MapGormErrorToDomain(err)
}

func (r *reservationRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to ledger.ReservationStatus,
	at time.Time,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": at})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *reservationRepository) ListHeld(ctx context.Context) ([]ledger.Reservation, error) {
	var rows []Reservation
	err := r.db.WithContext(ctx).
		Where("status = ?", string(ledger.ReservationHeld)).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]ledger.Reservation, len(rows))
	for i, m := range rows {
		out[i] = toReservation(m)
	}
	return out, nil
}

func toReservation(m Reservation) ledger.Reservation {
	return ledger.Reservation{
		ID:                  m.ID,
		Pool:                ledger.PoolName(m.PoolName),
		Asset:               money.Code(m.Asset),
		Amount:              m.Amount,
		CounterpartyAddress: m.CounterpartyAddress,
		Reason:              m.Reason,
		Status:              ledger.ReservationStatus(m.Status),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
