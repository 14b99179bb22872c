// Package telemetry records operational events for the orchestration engine.
//
// Telemetry events cover router decisions, budget trims, retry attempts,
// validation failures, and combat-plan transitions. They are distinct from
// the game turn log, which is canonical session data.
package telemetry

import (
	"context"
	"time"

	"github.com/emberloom/emberloom/internal/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event names emitted by the engine.
const (
	// EventRouterDecision records every intent classification outcome.
	EventRouterDecision = "engine.router.decision"
	// EventRouterAnomaly records a rejected classification replaced by the fallback intent.
	EventRouterAnomaly = "engine.router.anomaly"
	// EventContextTrimmed records a context composition that exceeded its budget.
	EventContextTrimmed = "engine.context.trimmed"
	// EventBackendAttempt records one backend invocation attempt, success or failure.
	EventBackendAttempt = "engine.backend.attempt"
	// EventPayloadRejected records a specialist payload that failed validation.
	EventPayloadRejected = "engine.payload.rejected"
	// EventCombatTransition records a combat-plan state transition.
	EventCombatTransition = "engine.combat.transition"
	// EventTurnCommitted records a committed turn with its final status.
	EventTurnCommitted = "engine.turn.committed"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendTelemetryEvent(ctx, evt)
}
