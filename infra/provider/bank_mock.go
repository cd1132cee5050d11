package provider

import (
	"context"
	"sync"
	"time"

	"github.com/amirasaad/treasury/pkg/provider"
	"github.com/google/uuid"
)

// MockBankSync serves a fixed set of accounts.
type MockBankSync struct {
	mu       sync.Mutex
	accounts []provider.BankAccount
	syncs    int
}

// NewMockBankSync creates a mock with one operating account.
func NewMockBankSync() *MockBankSync {
	return &MockBankSync{
		accounts: []provider.BankAccount{{
			ID:          "acct_operating",
			Institution: "Mock Bank",
			Mask:        "0001",
			Currency:    "USD",
			Balance:     0,
			SyncedAt:    time.Now().UTC(),
		}},
	}
}

// SetAccounts replaces the served accounts.
func (m *MockBankSync) SetAccounts(accounts []provider.BankAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = append([]provider.BankAccount(nil), accounts...)
}

func (m *MockBankSync) ListAccounts(ctx context.Context) ([]provider.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.BankAccount(nil), m.accounts...), nil
}

func (m *MockBankSync) TriggerSync(ctx context.Context) (provider.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	now := time.Now().UTC()
	for i := range m.accounts {
		m.accounts[i].SyncedAt = now
	}
	return provider.SyncResult{SyncID: uuid.NewString(), Accounts: len(m.accounts), At: now}, nil
}

var _ provider.BankSync = (*MockBankSync)(nil)
