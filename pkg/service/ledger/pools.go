package ledger

import (
	"fmt"
	"strings"

	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolsFromProgram converts the configured pool table. Percentages are
// stored in basis points, so more than two decimals is rejected.
func PoolsFromProgram(p *config.Program) ([]ledger.Pool, error) {
	pools := make([]ledger.Pool, 0, len(p.Pools))
	for _, pc := range p.Pools {
		name, err := ledger.ParsePoolName(pc.Name)
		if err != nil {
			return nil, err
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(pc.AllocationPct))
		if err != nil {
			return nil, fmt.Errorf("%w: pool %s allocation %q: %v", domain.ErrAllocationConfig, name, pc.AllocationPct, err)
		}
		bps := pct.Mul(decimal.NewFromInt(100))
		if !bps.Equal(bps.Truncate(0)) {
			return nil, fmt.Errorf("%w: pool %s allocation %s has more than two decimals",
				domain.ErrAllocationConfig, name, pct)
		}
		addr := strings.TrimSpace(pc.CustodyAddress)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: pool %s custody address %q", domain.ErrInvalidInput, name, pc.CustodyAddress)
		}
		pools = append(pools, ledger.Pool{
			Name:           name,
			CustodyAddress: common.HexToAddress(addr).Hex(),
			AllocationBps:  bps.IntPart(),
		})
	}
	return pools, nil
}
