package ledger

import (
	"time"

	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/service/allocator"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
)

//revive:disable

// RecordTransactionRequest records an inbound deposit or a compensating entry.
type RecordTransactionRequest struct {
	ID                  string `json:"id" validate:"omitempty,uuid"`
	Pool                string `json:"pool" validate:"required,oneof=consumer affiliate wholesale"`
	Asset               string `json:"asset" validate:"omitempty,oneof=USDT GAS"`
	Direction           string `json:"direction" validate:"required,oneof=in out"`
	Amount              string `json:"amount" validate:"required,numeric"`
	CounterpartyAddress string `json:"counterparty_address" validate:"omitempty,max=64"`
	SettlementRef       string `json:"settlement_ref" validate:"omitempty,max=128"`
	Reason              string `json:"reason" validate:"required,max=512"`
}

// ProceedsRequest is the inbound sale-proceeds webhook body.
type ProceedsRequest struct {
	Ref   string `json:"ref" validate:"required,max=128"`
	Gross string `json:"gross" validate:"required,numeric"`
}

// ReconcileRequest commits a held reservation with the rail reference.
type ReconcileRequest struct {
	SettlementRef string `json:"settlement_ref" validate:"required,max=128"`
}

type TransactionDTO struct {
	ID                  string    `json:"id"`
	Pool                string    `json:"pool"`
	Asset               string    `json:"asset"`
	Direction           string    `json:"direction"`
	Amount              string    `json:"amount"`
	CounterpartyAddress string    `json:"counterparty_address,omitempty"`
	SettlementRef       string    `json:"settlement_ref,omitempty"`
	Reason              string    `json:"reason"`
	CreatedAt           time.Time `json:"created_at"`
}

type BalanceDTO struct {
	Pool string    `json:"pool"`
	USDT string    `json:"usdt"`
	Gas  string    `json:"gas"`
	AsOf time.Time `json:"as_of"`
}

type PoolDTO struct {
	Name           string `json:"name"`
	CustodyAddress string `json:"custody_address"`
	AllocationPct  string `json:"allocation_pct"`
	USDT           string `json:"usdt"`
	Gas            string `json:"gas"`
	Held           string `json:"held"`
	Available      string `json:"available"`
}

type AllocationDTO struct {
	Gross    string            `json:"gross"`
	Credits  map[string]string `json:"credits"`
	Retained string            `json:"retained"`
}

type ProceedsDTO struct {
	Ref          string           `json:"ref"`
	Allocation   AllocationDTO    `json:"allocation"`
	Transactions []TransactionDTO `json:"transactions"`
}

type PageDTO struct {
	Items    []TransactionDTO `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

func ToTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                  tx.ID.String(),
		Pool:                string(tx.Pool),
		Asset:               string(tx.Asset),
		Direction:           string(tx.Direction),
		Amount:              tx.Money().StringFixed(),
		CounterpartyAddress: tx.CounterpartyAddress,
		Reason:              tx.Reason,
		CreatedAt:           tx.CreatedAt,
	}
	if tx.SettlementRef != nil {
		dto.SettlementRef = *tx.SettlementRef
	}
	return dto
}

func ToBalanceDTO(b ledger.Balance) BalanceDTO {
	return BalanceDTO{Pool: string(b.Pool), USDT: b.USDT.StringFixed(), Gas: b.Gas.StringFixed(), AsOf: b.AsOf}
}

func ToPoolDTO(p ledgersvc.PoolBalance) PoolDTO {
	return PoolDTO{
		Name:           string(p.Pool.Name),
		CustodyAddress: p.Pool.CustodyAddress,
		AllocationPct:  p.Pool.AllocationPct().String(),
		USDT:           p.Balance.USDT.StringFixed(),
		Gas:            p.Balance.Gas.StringFixed(),
		Held:           p.Held.StringFixed(),
		Available:      p.Available.StringFixed(),
	}
}

func ToAllocationDTO(a allocator.Allocation) AllocationDTO {
	credits := make(map[string]string, len(a.Credits))
	for pool, amt := range a.Credits {
		credits[string(pool)] = money.FormatAmount(amt, money.USDT)
	}
	return AllocationDTO{
		Gross:    money.FormatAmount(a.Gross, money.USDT),
		Credits:  credits,
		Retained: money.FormatAmount(a.Retained, money.USDT),
	}
}
