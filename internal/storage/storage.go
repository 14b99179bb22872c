// Package storage defines persistence boundaries consumed by the engine.
//
// The engine emits per turn: the updated scene state, the new turn record,
// appended memory writes, and any combat-plan transition. Telemetry events
// are operational observations and are stored separately from game data.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// TelemetryEvent captures operational observations emitted during turn execution.
type TelemetryEvent struct {
	Timestamp   time.Time
	EventName   string
	Severity    string
	CampaignID  string
	SessionID   string
	HandlerType string
	Outcome     string
	Attributes  map[string]any
}

// TelemetryStore persists operational telemetry records for audits and incident analysis.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}
