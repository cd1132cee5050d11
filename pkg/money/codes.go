package money

// Code represents an asset code held by a treasury pool (e.g., "USDT", "GAS").
type Code string

// Asset codes tracked by the ledger
const (
	USDT Code = "USDT" // stablecoin, accounted in cents
	GAS  Code = "GAS"  // native chain token used for transfer fees
)

// Common asset instances
var (
	USDTCurrency = Currency{Code: USDT, Decimals: 2}
	GASCurrency  = Currency{Code: GAS, Decimals: 8}
)

// DefaultCurrency is the asset payouts and comps are denominated in.
var DefaultCurrency = USDTCurrency

// ToCurrency converts a Code to a Currency with its ledger precision.
func (c Code) ToCurrency() Currency {
	switch c {
	case USDT:
		return USDTCurrency
	case GAS:
		return GASCurrency
	default:
		return Currency{Code: c, Decimals: 2}
	}
}

// IsValid reports whether the code is 2-8 uppercase letters or digits.
func (c Code) IsValid() bool {
	if len(c) < 2 || len(c) > 8 {
		return false
	}
	for _, r := range c {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// IsTracked reports whether the ledger keeps a balance for the code.
func (c Code) IsTracked() bool {
	return c == USDT || c == GAS
}

func (c Code) String() string {
	return string(c)
}
