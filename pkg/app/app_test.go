package app_test

import (
	"context"
	"testing"
	"time"

	infracache "github.com/amirasaad/treasury/infra/cache"
	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/domain/comp"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	affiliatesvc "github.com/amirasaad/treasury/pkg/service/affiliate"
	compsvc "github.com/amirasaad/treasury/pkg/service/comp"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	uow, _ := testutils.SetupTestUoW(t)
	logger := testutils.DiscardLogger()
	a, err := app.New(&app.Deps{
		Uow:           uow,
		EventBus:      infraeventbus.NewWithMemory(logger),
		Rail:          infraprovider.NewMockRail(),
		BankSync:      infraprovider.NewMockBankSync(),
		ProgressCache: infracache.NewMemoryProgressCache(),
		Logger:        logger,
	}, &config.App{
		Payout: &config.Payout{AggregateSchedule: "0 0 * * 1"},
		Comp:   &config.Comp{SweepSchedule: "*/10 * * * *", SweepAge: time.Minute},
		Sunset: &config.Sunset{CheckSchedule: "15 0 * * *", CacheTTL: time.Hour},
		Rail:   &config.Rail{Timeout: time.Second},
		Bank:   &config.Bank{Timeout: time.Second},
	})
	require.NoError(t, err)
	require.NoError(t, a.SyncPools(context.Background()))
	return a
}

func TestNewWiresCompSettlementThroughTheBus(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	_, err := a.Ledger.ReceiveProceeds(ctx, "seed", 1_000_000)
	require.NoError(t, err)
	_, err = a.Affiliates.UpsertMember(ctx, affiliatesvc.MemberRequest{
		UserID: "user-1", WalletAddress: "0x9999999999999999999999999999999999999999",
	})
	require.NoError(t, err)

	c, err := a.Comps.AwardComp(ctx, compsvc.AwardRequest{UserID: "user-1", Amount: 10_000})
	require.NoError(t, err)
	assert.Equal(t, comp.StatusCompleted, c.Status)

	bal, err := a.Ledger.GetBalance(ctx, ledger.Consumer, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000-10_000), bal.USDT.Amount())
}

func TestEnrollmentClosesAfterSunset(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		at := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		_, err := a.Sunset.RecordVolume(ctx, nil, 1000, at)
		require.NoError(t, err)
	}
	p, err := a.Sunset.CheckSunset(ctx)
	require.NoError(t, err)
	require.True(t, p.IsTriggered)

	_, err = a.Affiliates.Enroll(ctx, "Late", "0x5555555555555555555555555555555555555555")
	assert.ErrorIs(t, err, affiliate.ErrEnrollmentClosed)
}

func TestJobs(t *testing.T) {
	a := newApp(t)
	jobs := a.Jobs()
	require.Len(t, jobs, 4)
	names := map[string]string{}
	for _, j := range jobs {
		names[j.Name] = j.Schedule
	}
	assert.Equal(t, "0 0 * * 1", names["payout-aggregate"])
	assert.Equal(t, "15 0 * * *", names["sunset-check"])
	assert.Equal(t, "*/10 * * * *", names["comp-settle-sweep"])
	assert.Empty(t, names["bank-sync"])

	for _, j := range jobs {
		assert.NoError(t, j.Run(context.Background()), j.Name)
	}
}

func TestNewRejectsBadProgram(t *testing.T) {
	uow, _ := testutils.SetupTestUoW(t)
	p := config.DefaultProgram()
	p.MatchRate = "abc"
	_, err := app.New(&app.Deps{Uow: uow, Rail: infraprovider.NewMockRail()}, &config.App{Program: p})
	assert.Error(t, err)
}
