// Package provider declares the external systems the treasury calls out to.
package provider

import (
	"context"
	"errors"

	"github.com/amirasaad/treasury/pkg/money"
)

// ErrRailRejected is returned when the rail definitively refused a transfer.
// Any other error leaves the outcome unknown.
var ErrRailRejected = errors.New("settlement rail rejected transfer")

// SendParams describes one outbound transfer. The rail must treat
// IdempotencyKey as a dedupe key: a repeated key returns the original result.
type SendParams struct {
	IdempotencyKey string
	From           string
	To             string
	Asset          money.Code
	Amount         money.Amount
}

// SendResult carries the rail's reference (a transaction hash for crypto).
type SendResult struct {
	Ref string
}

// SettlementRail executes transfers out of custody addresses.
type SettlementRail interface {
	Send(ctx context.Context, p SendParams) (SendResult, error)
}
