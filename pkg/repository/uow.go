package repository

import (
	"context"
	"reflect"
)

// UnitOfWork defines the contract for transactional work and type-safe repository access.
//
// Repositories obtained from the UnitOfWork passed to Do share its
// transaction; repositories obtained outside Do use the base session.
type UnitOfWork interface {
	// Do executes fn within a transaction boundary.
	// If fn returns an error, the transaction is rolled back.
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	// GetRepository returns a repository of the requested interface type, bound
	// to the current session:
	//
	//	repoAny, err := uow.GetRepository(reflect.TypeOf((*CompRepository)(nil)).Elem())
	GetRepository(repoType reflect.Type) (any, error)

	LedgerRepository() (LedgerRepository, error)
	PoolRepository() (PoolRepository, error)
	ReservationRepository() (ReservationRepository, error)
	TransferRepository() (TransferRepository, error)
	BatchRepository() (BatchRepository, error)
	PayoutRepository() (PayoutRepository, error)
	CompRepository() (CompRepository, error)
	AffiliateRepository() (AffiliateRepository, error)
	MemberRepository() (MemberRepository, error)
	VolumeRepository() (VolumeRepository, error)
	SunsetRepository() (SunsetRepository, error)
}
