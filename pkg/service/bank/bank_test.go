package bank_test

import (
	"context"
	"errors"
	"testing"
	"time"

	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/provider"
	banksvc "github.com/amirasaad/treasury/pkg/service/bank"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type failingSync struct{ mock.Mock }

func (f *failingSync) ListAccounts(ctx context.Context) ([]provider.BankAccount, error) {
	args := f.Called(ctx)
	return nil, args.Error(1)
}

func (f *failingSync) TriggerSync(ctx context.Context) (provider.SyncResult, error) {
	args := f.Called(ctx)
	return provider.SyncResult{}, args.Error(1)
}

func TestListAndSync(t *testing.T) {
	mockSync := infraprovider.NewMockBankSync()
	mockSync.SetAccounts([]provider.BankAccount{
		{ID: "acct_1", Institution: "First", Mask: "1234", Currency: "USD", Balance: 1_274_508},
	})
	svc := banksvc.New(mockSync, time.Second, testutils.DiscardLogger())

	accounts, err := svc.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, int64(1_274_508), accounts[0].Balance)

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accounts)
	assert.NotEmpty(t, res.SyncID)
}

func TestProviderErrorsAreSettlementFailures(t *testing.T) {
	f := &failingSync{}
	f.On("ListAccounts", mock.Anything).Return(nil, errors.New("connection refused"))
	f.On("TriggerSync", mock.Anything).Return(nil, errors.New("timeout"))
	svc := banksvc.New(f, time.Second, testutils.DiscardLogger())

	_, err := svc.ListAccounts(context.Background())
	assert.ErrorIs(t, err, domain.ErrSettlementFailed)
	_, err = svc.Sync(context.Background())
	assert.ErrorIs(t, err, domain.ErrSettlementFailed)
	f.AssertExpectations(t)
}
