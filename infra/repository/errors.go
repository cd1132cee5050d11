package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirasaad/treasury/pkg/domain"
	"gorm.io/gorm"
)

// driverErrors maps driver messages the dialect does not translate into
// gorm sentinels.
var driverErrors = []struct {
	fragment string
	err      error
}{
	{"UNIQUE constraint failed", domain.ErrAlreadyExists},
	{"duplicate key value violates unique constraint", domain.ErrAlreadyExists},
	{"ledger_transactions is append-only", domain.ErrImmutable},
}

// MapGormErrorToDomain converts GORM and driver errors to domain errors so
// callers never branch on database types.
func MapGormErrorToDomain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrAlreadyExists
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	}
	msg := err.Error()
	for _, d := range driverErrors {
		if strings.Contains(msg, d.fragment) {
			return fmt.Errorf("%w: %s", d.err, msg)
		}
	}
	return err
}

// WrapError wraps a GORM operation and automatically maps errors.
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).Create(&model).Error
//	})
func WrapError(op func() error) error {
	return MapGormErrorToDomain(op())
}
