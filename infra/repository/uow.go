package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/amirasaad/treasury/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides transaction boundary and repository access in one abstraction.
// All repositories handed out inside Do share the same *gorm.DB transaction.
type UoW struct {
	db           *gorm.DB
	tx           *gorm.DB
	repoRegistry map[reflect.Type]func(*gorm.DB) any
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{
		db: db,
		repoRegistry: map[reflect.Type]func(*gorm.DB) any{
			typeOf[repository.LedgerRepository]():      func(db *gorm.DB) any { return NewLedgerRepository(db) },
			typeOf[repository.PoolRepository]():        func(db *gorm.DB) any { return NewPoolRepository(db) },
			typeOf[repository.ReservationRepository](): func(db *gorm.DB) any { return NewReservationRepository(db) },
			typeOf[repository.TransferRepository]():    func(db *gorm.DB) any { return NewTransferRepository(db) },
			typeOf[repository.BatchRepository]():       func(db *gorm.DB) any { return NewBatchRepository(db) },
			typeOf[repository.PayoutRepository]():      func(db *gorm.DB) any { return NewPayoutRepository(db) },
			typeOf[repository.CompRepository]():        func(db *gorm.DB) any { return NewCompRepository(db) },
			typeOf[repository.AffiliateRepository]():   func(db *gorm.DB) any { return NewAffiliateRepository(db) },
			typeOf[repository.MemberRepository]():      func(db *gorm.DB) any { return NewMemberRepository(db) },
			typeOf[repository.VolumeRepository]():      func(db *gorm.DB) any { return NewVolumeRepository(db) },
			typeOf[repository.SunsetRepository]():      func(db *gorm.DB) any { return NewSunsetRepository(db) },
		},
	}
}

// Do runs fn in a transaction boundary, providing a UoW bound to it.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx, repoRegistry: u.repoRegistry})
	})
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

// GetRepository provides type-safe access to repositories using the current session.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	return constructor(u.session()), nil
}

func get[T any](u *UoW) (T, error) {
	var zero T
	repoAny, err := u.GetRepository(typeOf[T]())
	if err != nil {
		return zero, err
	}
	repo, ok := repoAny.(T)
	if !ok {
		return zero, fmt.Errorf("repository type mismatch for %v", typeOf[T]())
	}
	return repo, nil
}

func (u *UoW) LedgerRepository() (repository.LedgerRepository, error) {
	return get[repository.LedgerRepository](u)
}

func (u *UoW) PoolRepository() (repository.PoolRepository, error) {
	return get[repository.PoolRepository](u)
}

func (u *UoW) ReservationRepository() (repository.ReservationRepository, error) {
	return get[repository.ReservationRepository](u)
}

func (u *UoW) TransferRepository() (repository.TransferRepository, error) {
	return get[repository.TransferRepository](u)
}

func (u *UoW) BatchRepository() (repository.BatchRepository, error) {
	return get[repository.BatchRepository](u)
}

func (u *UoW) PayoutRepository() (repository.PayoutRepository, error) {
	return get[repository.PayoutRepository](u)
}

func (u *UoW) CompRepository() (repository.CompRepository, error) {
	return get[repository.CompRepository](u)
}

func (u *UoW) AffiliateRepository() (repository.AffiliateRepository, error) {
	return get[repository.AffiliateRepository](u)
}

func (u *UoW) MemberRepository() (repository.MemberRepository, error) {
	return get[repository.MemberRepository](u)
}

func (u *UoW) VolumeRepository() (repository.VolumeRepository, error) {
	return get[repository.VolumeRepository](u)
}

func (u *UoW) SunsetRepository() (repository.SunsetRepository, error) {
	return get[repository.SunsetRepository](u)
}

var _ repository.UnitOfWork = (*UoW)(nil)
