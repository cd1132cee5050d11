// Package eventbus defines the publish/subscribe contract used between the
// treasury services.
package eventbus

import (
	"context"
	"errors"

	"github.com/amirasaad/treasury/pkg/domain/events"
)

// ErrBusClosed is returned by Emit after the bus has been closed.
var ErrBusClosed = errors.New("event bus closed")

// HandlerFunc processes one event. A returned error is logged by the bus
// and, for durable buses, routes the message to the dead-letter stream.
type HandlerFunc func(ctx context.Context, e events.Event) error

// Bus publishes events and dispatches them to registered handlers.
type Bus interface {
	Register(eventType events.EventType, handler HandlerFunc)
	Emit(ctx context.Context, event events.Event) error
}
