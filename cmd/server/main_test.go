package main

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	infracache "github.com/amirasaad/treasury/infra/cache"
	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/amirasaad/treasury/webapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain runs before any tests and applies globally for all tests in the package.
func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func newApp(t *testing.T) *app.App {
	t.Helper()
	uow, _ := testutils.SetupTestUoW(t)
	a, err := app.New(&app.Deps{
		Uow:           uow,
		Rail:          infraprovider.NewMockRail(),
		BankSync:      infraprovider.NewMockBankSync(),
		ProgressCache: infracache.NewMemoryProgressCache(),
		Logger:        testutils.DiscardLogger(),
	}, &config.App{
		Auth:   &config.Auth{},
		Payout: &config.Payout{AggregateSchedule: "0 0 * * 1"},
		Sunset: &config.Sunset{CheckSchedule: "@hourly"},
		Bank:   &config.Bank{SyncSchedule: "@every 6h"},
	})
	require.NoError(t, err)
	return a
}

func TestStartSchedulerRegistersJobs(t *testing.T) {
	a := newApp(t)
	sched, err := startScheduler(a, testutils.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, sched.Len())

	bus := infraeventbus.NewWithMemoryAsync(testutils.DiscardLogger())
	deps := &app.Deps{EventBus: bus, ProgressCache: infracache.NewMemoryProgressCache()}
	shutdown(webapi.SetupApp(a), sched, deps, testutils.DiscardLogger())
}

func TestStartSchedulerRejectsBadSpec(t *testing.T) {
	a := newApp(t)
	a.Config.Sunset.CheckSchedule = "not a cron spec"
	_, err := startScheduler(a, testutils.DiscardLogger())
	assert.Error(t, err)
}

func TestShutdownStopsIdleServer(t *testing.T) {
	a := newApp(t)
	sched, err := startScheduler(a, testutils.DiscardLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		shutdown(webapi.SetupApp(a), sched, a.Deps, testutils.DiscardLogger())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}
}
