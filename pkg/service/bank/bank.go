// Package bank exposes the linked bank accounts behind the ACH side of the
// treasury. It reads through to the bank-sync provider and never touches the
// ledger.
package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/provider"
)

// Service wraps a BankSync provider with a call timeout.
type Service struct {
	sync    provider.BankSync
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a bank Service. A non-positive timeout defaults to 15s.
func New(sync provider.BankSync, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{sync: sync, timeout: timeout, logger: logger.With("service", "bank")}
}

// ListAccounts returns the linked accounts as last reported by the provider.
func (s *Service) ListAccounts(ctx context.Context) ([]provider.BankAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	accounts, err := s.sync.ListAccounts(ctx)
	if err != nil {
		s.logger.Error("list bank accounts failed", "error", err)
		return nil, fmt.Errorf("%w: list bank accounts: %v", domain.ErrSettlementFailed, err)
	}
	return accounts, nil
}

// Sync asks the provider to refresh balances.
func (s *Service) Sync(ctx context.Context) (provider.SyncResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.sync.TriggerSync(ctx)
	if err != nil {
		s.logger.Error("bank sync failed", "error", err)
		return provider.SyncResult{}, fmt.Errorf("%w: bank sync: %v", domain.ErrSettlementFailed, err)
	}
	s.logger.Info("bank sync completed", "sync_id", res.SyncID, "accounts", res.Accounts)
	return res, nil
}
