// Package events defines the domain events published on the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus.
type Event interface {
	Type() string
}

// EventType names an event on the wire.
type EventType string

const (
	EventTypeCompSettlementRequested EventType = "Comp.SettlementRequested"
	EventTypeCompCompleted           EventType = "Comp.Completed"
	EventTypeCompFailed              EventType = "Comp.Failed"
	EventTypeTransferSettled         EventType = "Transfer.Settled"
	EventTypeTransferFailed          EventType = "Transfer.Failed"
	EventTypeBatchCreated            EventType = "Batch.Created"
	EventTypeBatchPaid               EventType = "Batch.Paid"
	EventTypeBatchFailed             EventType = "Batch.Failed"
	EventTypeProceedsAllocated       EventType = "Proceeds.Allocated"
	EventTypeSunsetTriggered         EventType = "Sunset.Triggered"
)

func (et EventType) String() string { return string(et) }

// CompSettlementRequested asks the comp engine to pay a pending comp.
// Attempt distinguishes retries of the same comp.
type CompSettlementRequested struct {
	CompID  uuid.UUID `json:"compId"`
	Attempt int       `json:"attempt"`
}

type CompCompleted struct {
	CompID         uuid.UUID `json:"compId"`
	UserID         string    `json:"userId"`
	Amount         int64     `json:"amount"`
	AffiliateMatch int64     `json:"affiliateMatch"`
	SettlementRef  string    `json:"settlementRef"`
}

type CompFailed struct {
	CompID uuid.UUID `json:"compId"`
	Reason string    `json:"reason"`
}

type TransferSettled struct {
	ID            uuid.UUID `json:"id"`
	Pool          string    `json:"pool"`
	ToAddress     string    `json:"toAddress"`
	Amount        int64     `json:"amount"`
	SettlementRef string    `json:"settlementRef"`
}

type TransferFailed struct {
	ID     uuid.UUID `json:"id"`
	Pool   string    `json:"pool"`
	Reason string    `json:"reason"`
}

type BatchCreated struct {
	BatchID        uuid.UUID `json:"batchId"`
	PeriodStart    time.Time `json:"periodStart"`
	PeriodEnd      time.Time `json:"periodEnd"`
	TotalAmount    int64     `json:"totalAmount"`
	AffiliateCount int       `json:"affiliateCount"`
}

type BatchPaid struct {
	BatchID     uuid.UUID `json:"batchId"`
	TotalAmount int64     `json:"totalAmount"`
}

type BatchFailed struct {
	BatchID uuid.UUID `json:"batchId"`
	Reason  string    `json:"reason"`
}

type ProceedsAllocated struct {
	Ref     string           `json:"ref"`
	Gross   int64            `json:"gross"`
	Credits map[string]int64 `json:"credits"`
}

type SunsetTriggered struct {
	TriggeredAt time.Time `json:"triggeredAt"`
	Percentage  string    `json:"percentage"`
}

func (CompSettlementRequested) Type() string { return EventTypeCompSettlementRequested.String() }
func (CompCompleted) Type() string           { return EventTypeCompCompleted.String() }
func (CompFailed) Type() string              { return EventTypeCompFailed.String() }
func (TransferSettled) Type() string         { return EventTypeTransferSettled.String() }
func (TransferFailed) Type() string          { return EventTypeTransferFailed.String() }
func (BatchCreated) Type() string            { return EventTypeBatchCreated.String() }
func (BatchPaid) Type() string               { return EventTypeBatchPaid.String() }
func (BatchFailed) Type() string             { return EventTypeBatchFailed.String() }
func (ProceedsAllocated) Type() string       { return EventTypeProceedsAllocated.String() }
func (SunsetTriggered) Type() string         { return EventTypeSunsetTriggered.String() }

// Factories constructs empty events by type for decoding off the wire.
var Factories = map[EventType]func() Event{
	EventTypeCompSettlementRequested: func() Event { return &CompSettlementRequested{} },
	EventTypeCompCompleted:           func() Event { return &CompCompleted{} },
	EventTypeCompFailed:              func() Event { return &CompFailed{} },
	EventTypeTransferSettled:         func() Event { return &TransferSettled{} },
	EventTypeTransferFailed:          func() Event { return &TransferFailed{} },
	EventTypeBatchCreated:            func() Event { return &BatchCreated{} },
	EventTypeBatchPaid:               func() Event { return &BatchPaid{} },
	EventTypeBatchFailed:             func() Event { return &BatchFailed{} },
	EventTypeProceedsAllocated:       func() Event { return &ProceedsAllocated{} },
	EventTypeSunsetTriggered:         func() Event { return &SunsetTriggered{} },
}
