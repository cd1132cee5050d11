package app

import (
	"context"
	"log/slog"

	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/eventbus"
)

// setupEventBus registers all event handlers with the provided event Bus.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	logger := a.Deps.Logger

	a.setupCompHandlers(bus)
	a.setupAuditHandlers(bus, logger)
}

func (a *App) setupCompHandlers(bus eventbus.Bus) {
	bus.Register(
		events.EventTypeCompSettlementRequested,
		a.Comps.SettlementHandler(),
	)
}

// setupAuditHandlers logs the outcomes operators are paged on.
func (a *App) setupAuditHandlers(bus eventbus.Bus, logger *slog.Logger) {
	logger = logger.With("handler", "audit")
	bus.Register(events.EventTypeSunsetTriggered, func(ctx context.Context, e events.Event) error {
		logger.Warn("sunset triggered, affiliate enrollment closed", "event", e)
		return nil
	})
	bus.Register(events.EventTypeBatchFailed, func(ctx context.Context, e events.Event) error {
		logger.Warn("payout batch failed", "event", e)
		return nil
	})
	bus.Register(events.EventTypeTransferFailed, func(ctx context.Context, e events.Event) error {
		logger.Warn("transfer failed", "event", e)
		return nil
	})
}
