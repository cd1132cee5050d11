package provider

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/amirasaad/treasury/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
)

// MockRail simulates a settlement rail for tests and local development.
//
// A repeated idempotency key returns the reference of the first successful
// send without counting as a new transfer. Failures can be injected per
// destination address or for the next n calls, and Delay makes Send block so
// callers' timeouts can be exercised.
type MockRail struct {
	mu        sync.Mutex
	sent      map[string]provider.SendResult
	failTo    map[string]error
	failNext  int
	failErr   error
	calls     int
	transfers []provider.SendParams

	Delay time.Duration
}

// NewMockRail creates a rail that accepts every transfer.
func NewMockRail() *MockRail {
	return &MockRail{
		sent:   make(map[string]provider.SendResult),
		failTo: make(map[string]error),
	}
}

// FailTo makes every send to address fail with err.
func (m *MockRail) FailTo(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTo[common.HexToAddress(address).Hex()] = err
}

// FailNext makes the next n sends fail with err.
func (m *MockRail) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// Reset clears injected failures.
func (m *MockRail) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTo = make(map[string]error)
	m.failNext = 0
	m.failErr = nil
}

func (m *MockRail) Send(ctx context.Context, p provider.SendParams) (provider.SendResult, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return provider.SendResult{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if res, ok := m.sent[p.IdempotencyKey]; ok {
		return res, nil
	}
	if m.failNext > 0 {
		m.failNext--
		return provider.SendResult{}, m.failErr
	}
	if err, ok := m.failTo[common.HexToAddress(p.To).Hex()]; ok {
		return provider.SendResult{}, err
	}
	if p.Amount <= 0 {
		return provider.SendResult{}, fmt.Errorf("%w: amount must be positive", provider.ErrRailRejected)
	}

	sum := sha256.Sum256([]byte(p.IdempotencyKey))
	res := provider.SendResult{Ref: common.BytesToHash(sum[:]).Hex()}
	m.sent[p.IdempotencyKey] = res
	m.transfers = append(m.transfers, p)
	return res, nil
}

// Calls returns how many times Send was invoked, including replays.
func (m *MockRail) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Transfers returns the distinct transfers accepted so far.
func (m *MockRail) Transfers() []provider.SendParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.SendParams(nil), m.transfers...)
}

var _ provider.SettlementRail = (*MockRail)(nil)
