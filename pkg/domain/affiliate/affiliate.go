// Package affiliate holds the affiliates who earn reward matches and the
// members whose comps generate them.
package affiliate

import (
	"fmt"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/google/uuid"
)

// ErrEnrollmentClosed is returned once the program sunset has triggered.
var ErrEnrollmentClosed = fmt.Errorf("%w: affiliate enrollment is closed", domain.ErrInvalidTransition)

// Status of an affiliate.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Affiliate is a partner paid out of the affiliate pool.
type Affiliate struct {
	ID            uuid.UUID
	Name          string
	PayoutAddress string
	Status        Status
	EnrolledAt    time.Time
	UpdatedAt     time.Time
}

// Active reports whether the affiliate is eligible for earnings and payouts.
func (a Affiliate) Active() bool { return a.Status == StatusActive }

// Member is an end user who can receive comps.
type Member struct {
	UserID            string
	WalletAddress     string
	UplineAffiliateID *uuid.UUID
	ScanCount         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
