package events

import (
	"time"

	"github.com/rovshanmuradov/portfolio-tracker/internal/analytics"
	"github.com/rovshanmuradov/portfolio-tracker/internal/portfolio"
)

// EventType represents the type of event.
type EventType string

const (
	SnapshotUpdated EventType = "snapshot.updated"
	SummaryUpdated  EventType = "summary.updated"
	StatusChanged   EventType = "status.changed"
	CountdownTick   EventType = "countdown.tick"
	LedgerUpdated   EventType = "ledger.updated"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SnapshotUpdatedEvent is emitted after a fully successful refresh pass.
type SnapshotUpdatedEvent struct {
	BaseEvent
	Snapshot      *portfolio.Snapshot
	TotalAssets   float64
	SessionChange string // e.g. " ↑ +1.23%", empty on the first refresh
}

// SummaryUpdatedEvent carries the recomputed display summary.
type SummaryUpdatedEvent struct {
	BaseEvent
	Summary  analytics.Summary
	Warnings []string
	Status   string
}

// StatusChangedEvent carries the presentation-facing status line.
type StatusChangedEvent struct {
	BaseEvent
	Status string
	Err    error
}

// CountdownTickEvent is emitted once per second while the cooldown counts down.
type CountdownTickEvent struct {
	BaseEvent
	SecondsLeft int
}

// LedgerUpdatedEvent is emitted after an import added new rows.
type LedgerUpdatedEvent struct {
	BaseEvent
	Added int
	Total int
}

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}
