package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirasaad/treasury/pkg/cache"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/eventbus"
	"github.com/amirasaad/treasury/pkg/observability"
	"github.com/amirasaad/treasury/pkg/provider"
	"github.com/amirasaad/treasury/pkg/repository"
	affiliatesvc "github.com/amirasaad/treasury/pkg/service/affiliate"
	banksvc "github.com/amirasaad/treasury/pkg/service/bank"
	compsvc "github.com/amirasaad/treasury/pkg/service/comp"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	payoutsvc "github.com/amirasaad/treasury/pkg/service/payout"
	sunsetsvc "github.com/amirasaad/treasury/pkg/service/sunset"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
)

// Deps contains all the dependencies the services are built from.
// ProgressCache, BankSync and Metrics may be nil.
type Deps struct {
	Uow           repository.UnitOfWork
	EventBus      eventbus.Bus
	Rail          provider.SettlementRail
	BankSync      provider.BankSync
	ProgressCache cache.ProgressCache
	Metrics       observability.Recorder
	Logger        *slog.Logger
}

type App struct {
	Deps       *Deps
	Config     *config.App
	Ledger     *ledgersvc.Store
	Transfers  *transfersvc.Service
	Payouts    *payoutsvc.Engine
	Comps      *compsvc.Engine
	Affiliates *affiliatesvc.Service
	Sunset     *sunsetsvc.Monitor
	Bank       *banksvc.Service
}

// New builds the services and registers the event handlers.
func New(deps *Deps, cfg *config.App) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Program == nil {
		cfg.Program = config.DefaultProgram()
	}
	compCfg, err := compsvc.ConfigFromProgram(cfg.Program)
	if err != nil {
		return nil, err
	}

	app := &App{
		Deps:   deps,
		Config: cfg,
	}
	logger := deps.Logger

	app.Ledger = ledgersvc.New(deps.Uow, deps.EventBus, logger, deps.Metrics)
	app.Transfers = transfersvc.New(
		deps.Uow,
		app.Ledger,
		deps.Rail,
		deps.EventBus,
		transfersvc.Config{
			RailTimeout:        railTimeout(cfg),
			ConfirmationPhrase: cfg.Program.ConfirmationPhrase,
		},
		logger,
		deps.Metrics,
	)
	app.Payouts = payoutsvc.New(deps.Uow, app.Transfers, deps.EventBus, logger, deps.Metrics)
	app.Comps = compsvc.New(deps.Uow, app.Transfers, app.Payouts, deps.EventBus, compCfg, logger, deps.Metrics)

	var ttl = cacheTTL(cfg)
	app.Sunset = sunsetsvc.New(
		deps.Uow,
		deps.ProgressCache,
		deps.EventBus,
		cfg.Program.SunsetThreshold,
		ttl,
		logger,
		deps.Metrics,
	)
	app.Affiliates = affiliatesvc.New(deps.Uow, app.Sunset, logger)
	if deps.BankSync != nil {
		app.Bank = banksvc.New(deps.BankSync, bankTimeout(cfg), logger)
	}

	if deps.EventBus != nil {
		app.setupEventBus()
	}
	return app, nil
}

// SyncPools seeds or updates the pool table from the program file.
func (a *App) SyncPools(ctx context.Context) error {
	pools, err := ledgersvc.PoolsFromProgram(a.Config.Program)
	if err != nil {
		return fmt.Errorf("program pools: %w", err)
	}
	return a.Ledger.SyncPools(ctx, pools)
}
