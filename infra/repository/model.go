package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pool is the GORM model of a treasury pool.
type Pool struct {
	Name           string `gorm:"primaryKey;size:32"`
	CustodyAddress string `gorm:"size:64;not null"`
	AllocationBps  int64  `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Pool) TableName() string { return "pools" }

// LedgerTransaction is the append-only ledger row. It carries no UpdatedAt
// and no soft-delete column: rows are never modified.
type LedgerTransaction struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	PoolName            string    `gorm:"size:32;not null;index:idx_ledger_pool_created,priority:1"`
	Asset               string    `gorm:"size:8;not null"`
	Direction           string    `gorm:"size:3;not null;check:chk_ledger_direction,direction IN ('in','out')"`
	Amount              int64     `gorm:"not null;check:chk_ledger_amount,amount > 0"`
	CounterpartyAddress string    `gorm:"size:64"`
	SettlementRef       *string   `gorm:"size:128"`
	Reason              string    `gorm:"size:512"`
	CreatedAt           time.Time `gorm:"not null;index:idx_ledger_pool_created,priority:2"`
}

func (LedgerTransaction) TableName() string { return "ledger_transactions" }

// Reservation is an outbound amount held during a rail call.
type Reservation struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	PoolName            string    `gorm:"size:32;not null;index:idx_reservation_pool_status,priority:1"`
	Asset               string    `gorm:"size:8;not null"`
	Amount              int64     `gorm:"not null"`
	CounterpartyAddress string    `gorm:"size:64"`
	Reason              string    `gorm:"size:512"`
	Status              string    `gorm:"size:16;not null;index:idx_reservation_pool_status,priority:2"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (Reservation) TableName() string { return "reservations" }

// PendingTransfer is an operator transfer in its two-phase flow.
type PendingTransfer struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	PoolName      string    `gorm:"size:32;not null"`
	ToAddress     string    `gorm:"size:64;not null"`
	Amount        int64     `gorm:"not null"`
	Reason        string    `gorm:"size:512"`
	Status        string    `gorm:"size:16;not null;index"`
	InitiatedBy   string    `gorm:"size:128"`
	ConfirmedBy   string    `gorm:"size:128"`
	SettlementRef string    `gorm:"size:128"`
	FailureReason string    `gorm:"size:512"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (PendingTransfer) TableName() string { return "pending_transfers" }

// PayoutBatch is a batch row; payouts reference it by batch_id.
type PayoutBatch struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PeriodStart    time.Time  `gorm:"not null;uniqueIndex:idx_batch_period_start"`
	PeriodEnd      time.Time  `gorm:"not null;uniqueIndex:idx_batch_period_end"`
	AffiliateCount int        `gorm:"not null"`
	TotalAmount    int64      `gorm:"not null"`
	Status         string     `gorm:"size:16;not null;index"`
	ApprovedBy     string     `gorm:"size:128"`
	ExecutedAt     *time.Time
	FailureReason  string `gorm:"size:512"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (PayoutBatch) TableName() string { return "payout_batches" }

// AffiliatePayout is an earning, batched once batch_id is set.
type AffiliatePayout struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BatchID       *uuid.UUID `gorm:"type:uuid;index"`
	AffiliateID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Amount        int64      `gorm:"not null"`
	PayoutType    string     `gorm:"size:16;not null;uniqueIndex:idx_payout_source,priority:1"`
	Status        string     `gorm:"size:16;not null"`
	SettlementRef string     `gorm:"size:128"`
	SourceRef     string     `gorm:"size:128;not null;uniqueIndex:idx_payout_source,priority:2"`
	FailureReason string     `gorm:"size:512"`
	EarnedAt      time.Time  `gorm:"not null;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AffiliatePayout) TableName() string { return "affiliate_payouts" }

// Comp is a complimentary payment row.
type Comp struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"size:128;not null;index"`
	CompType       string    `gorm:"size:64;not null"`
	Amount         int64     `gorm:"not null"`
	Status         string    `gorm:"size:16;not null;index"`
	SettlementRef  string    `gorm:"size:128"`
	AffiliateMatch int64     `gorm:"not null;default:0"`
	Reason         string    `gorm:"size:512"`
	MilestoneKey   *string   `gorm:"size:160;uniqueIndex"`
	Attempts       int       `gorm:"not null;default:1"`
	FailureReason  string    `gorm:"size:512"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Comp) TableName() string { return "comps" }

// Affiliate is an affiliate row.
type Affiliate struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name          string    `gorm:"size:255;not null"`
	PayoutAddress string    `gorm:"size:64;not null"`
	Status        string    `gorm:"size:16;not null"`
	EnrolledAt    time.Time
	UpdatedAt     time.Time
}

func (Affiliate) TableName() string { return "affiliates" }

// Member is a comp recipient.
type Member struct {
	UserID            string     `gorm:"primaryKey;size:128"`
	WalletAddress     string     `gorm:"size:64"`
	UplineAffiliateID *uuid.UUID `gorm:"type:uuid;index"`
	ScanCount         int64      `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (Member) TableName() string { return "members" }

// ReferralVolume is one referral volume entry.
type ReferralVolume struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	AffiliateID *uuid.UUID `gorm:"type:uuid"`
	Tins        int64      `gorm:"not null"`
	RecordedAt  time.Time  `gorm:"not null;index"`
}

func (ReferralVolume) TableName() string { return "referral_volume" }

// SunsetState is the singleton row (ID 1) holding the latch.
type SunsetState struct {
	ID            int             `gorm:"primaryKey"`
	MonthlyVolume int64           `gorm:"not null"`
	RollingAvg    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Threshold     int64           `gorm:"not null"`
	Percentage    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	IsTriggered   bool            `gorm:"not null;default:false"`
	TriggeredAt   *time.Time
	ComputedAt    time.Time
	UpdatedAt     time.Time
}

func (SunsetState) TableName() string { return "sunset_state" }

// AllModels lists every model, for AutoMigrate on SQLite.
func AllModels() []any {
	return []any{
		&Pool{}, &LedgerTransaction{}, &Reservation{}, &PendingTransfer{},
		&PayoutBatch{}, &AffiliatePayout{}, &Comp{}, &Affiliate{}, &Member{},
		&ReferralVolume{}, &SunsetState{},
	}
}
