// Package allocator splits gross proceeds across the named treasury pools.
package allocator

import (
	"fmt"
	"sort"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/shopspring/decimal"
)

const fullBps = 10000

var bpsDivisor = decimal.NewFromInt(fullBps)

// Allocation is the result of splitting one gross amount.
type Allocation struct {
	Gross    money.Amount
	Credits  map[ledger.PoolName]money.Amount
	Retained money.Amount
}

// Allocator credits each pool floor(gross x pct / 100) and hands the
// rounding remainder of the allocated share to the pool with the largest
// percentage. Whatever is left of gross is retained and never tracked.
type Allocator struct {
	pools []ledger.Pool
}

// New validates the allocation table.
func New(pools []ledger.Pool) (*Allocator, error) {
	if len(pools) == 0 {
		return nil, fmt.Errorf("%w: no pools configured", domain.ErrAllocationConfig)
	}
	var sum int64
	for _, p := range pools {
		if p.AllocationBps < 0 {
			return nil, fmt.Errorf("%w: pool %s has negative allocation %s%%",
				domain.ErrAllocationConfig, p.Name, p.AllocationPct())
		}
		sum += p.AllocationBps
	}
	if sum > fullBps {
		return nil, fmt.Errorf("%w: allocations sum to %s%%, above 100%%",
			domain.ErrAllocationConfig, decimal.New(sum, -2))
	}
	sorted := append([]ledger.Pool(nil), pools...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].AllocationBps != sorted[j].AllocationBps {
			return sorted[i].AllocationBps > sorted[j].AllocationBps
		}
		return sorted[i].Name < sorted[j].Name
	})
	return &Allocator{pools: sorted}, nil
}

// Allocate splits gross, given in the smallest unit.
func (a *Allocator) Allocate(gross money.Amount) (Allocation, error) {
	if gross <= 0 {
		return Allocation{}, fmt.Errorf("%w: gross proceeds %s", ledger.ErrInvalidAmount,
			money.FormatAmount(gross, money.USDT))
	}
	g := decimal.NewFromInt(gross)
	credits := make(map[ledger.PoolName]money.Amount, len(a.pools))
	var credited, totalBps int64
	for _, p := range a.pools {
		c := share(g, p.AllocationBps)
		credits[p.Name] = c
		credited += c
		totalBps += p.AllocationBps
	}
	// pools are sorted largest first, so the remainder lands on a.pools[0]
	if rem := share(g, totalBps) - credited; rem > 0 {
		credits[a.pools[0].Name] += rem
		credited += rem
	}
	return Allocation{Gross: gross, Credits: credits, Retained: gross - credited}, nil
}

func share(gross decimal.Decimal, bps int64) money.Amount {
	return gross.Mul(decimal.NewFromInt(bps)).Div(bpsDivisor).Floor().IntPart()
}
