package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PoolConfig seeds one named pool.
type PoolConfig struct {
	Name           string `yaml:"name"`
	CustodyAddress string `yaml:"custody_address"`
	AllocationPct  string `yaml:"allocation_pct"`
}

// MilestoneConfig is one row of the scan-count award table.
type MilestoneConfig struct {
	ScanCount int64  `yaml:"scan_count"`
	CompType  string `yaml:"comp_type"`
	Amount    string `yaml:"amount"`
}

// Program holds the treasury program parameters that operators tune without
// a redeploy.
type Program struct {
	Pools              []PoolConfig      `yaml:"pools"`
	MatchRate          string            `yaml:"match_rate"`
	Milestones         []MilestoneConfig `yaml:"milestones"`
	SunsetThreshold    int64             `yaml:"sunset_threshold"`
	ConfirmationPhrase string            `yaml:"confirmation_phrase"`
}

// DefaultProgram returns the observed production configuration.
func DefaultProgram() *Program {
	return &Program{
		Pools: []PoolConfig{
			{Name: "consumer", CustodyAddress: "0x1111111111111111111111111111111111111111", AllocationPct: "50"},
			{Name: "affiliate", CustodyAddress: "0x2222222222222222222222222222222222222222", AllocationPct: "5"},
			{Name: "wholesale", CustodyAddress: "0x3333333333333333333333333333333333333333", AllocationPct: "5"},
		},
		MatchRate: "0.21",
		Milestones: []MilestoneConfig{
			{ScanCount: 100, Amount: "100.00"},
			{ScanCount: 1000, Amount: "1000.00"},
			{ScanCount: 10000, Amount: "10000.00"},
		},
		SunsetThreshold:    1000,
		ConfirmationPhrase: "CONFIRM",
	}
}

// LoadProgram reads the YAML program file. An empty path returns the
// defaults. Fields missing from the file keep their default values. The
// TREASURY_MATCH_RATE, TREASURY_SUNSET_THRESHOLD and
// TREASURY_CONFIRMATION_PHRASE variables override the file.
func LoadProgram(path string) (*Program, error) {
	p := DefaultProgram()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read program file: %w", err)
		}
		if err := yaml.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("parse program file %s: %w", path, err)
		}
	}
	if err := p.applyEnv(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the program for values the engines cannot run with.
func (p *Program) Validate() error {
	if len(p.Pools) == 0 {
		return errors.New("program: no pools configured")
	}
	total := decimal.Zero
	seen := make(map[string]bool, len(p.Pools))
	for _, pool := range p.Pools {
		if seen[pool.Name] {
			return fmt.Errorf("program: pool %q configured twice", pool.Name)
		}
		seen[pool.Name] = true
		pct, err := decimal.NewFromString(pool.AllocationPct)
		if err != nil {
			return fmt.Errorf("program: pool %q allocation_pct: %w", pool.Name, err)
		}
		if pct.IsNegative() {
			return fmt.Errorf("program: pool %q has negative allocation %s", pool.Name, pct)
		}
		total = total.Add(pct)
	}
	if total.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("program: pool allocations sum to %s%%, above 100%%", total)
	}
	rate, err := decimal.NewFromString(p.MatchRate)
	if err != nil {
		return fmt.Errorf("program: match_rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("program: match_rate %s outside [0, 1]", rate)
	}
	if p.SunsetThreshold <= 0 {
		return fmt.Errorf("program: sunset_threshold must be positive, got %d", p.SunsetThreshold)
	}
	if p.ConfirmationPhrase == "" {
		return errors.New("program: confirmation_phrase is empty")
	}
	var last int64
	for _, m := range p.Milestones {
		if m.ScanCount <= last {
			return fmt.Errorf("program: milestones must be strictly ascending at scan_count %d", m.ScanCount)
		}
		last = m.ScanCount
	}
	return nil
}

// MatchRateDecimal returns the parsed match rate. Call after Validate.
func (p *Program) MatchRateDecimal() decimal.Decimal {
	rate, _ := decimal.NewFromString(p.MatchRate)
	return rate
}
