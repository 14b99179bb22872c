// Package router classifies each player input into the closed intent set.
//
// Classification is a cheap generation call over a bounded recap context.
// Any rejected or out-of-set classification falls back deterministically to
// the short-narration intent; routing never blocks a turn.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/emberloom/emberloom/internal/engine/backend"
	"github.com/emberloom/emberloom/internal/engine/intent"
	"github.com/emberloom/emberloom/internal/engine/payload"
	"github.com/emberloom/emberloom/internal/engine/resilience"
	"github.com/emberloom/emberloom/internal/storage"
	"github.com/emberloom/emberloom/internal/telemetry"
)

// classifyInstructions frames the bounded recap for the classification call.
// The intent list is generated from the closed set so the prompt can never
// drift from the values the validator accepts.
const classifyInstructions = `Classify the player's latest input into exactly one intent.
Valid intents: %s.
When the input chains several actions, classify the one that would happen first; the remaining actions wait for a later turn, so mention them in the note.
When no intent clearly fits, answer %s with low confidence.
Reply with a fenced JSON block: {"intent": "...", "confidence": "low|medium|high", "note": "..."}.`

// Request carries one classification call.
type Request struct {
	CampaignID string
	SessionID  string
	// Context is the assembled, budget-bounded recap text.
	Context string
}

// Decision is the routing outcome for a turn. It always names an intent from
// the closed set.
type Decision struct {
	Intent     intent.Intent
	Confidence intent.Confidence
	Note       string
	// FellBack reports that classification was rejected and the deterministic
	// fallback intent was substituted.
	FellBack bool
	// Attempts is the number of backend attempts the classification call made.
	Attempts int
}

// Router classifies player input using a generation backend under retry policy.
type Router struct {
	generator backend.Generator
	executor  *resilience.Executor
	emitter   *telemetry.Emitter
}

// New creates a router. The emitter may be nil.
func New(generator backend.Generator, executor *resilience.Executor, emitter *telemetry.Emitter) *Router {
	return &Router{generator: generator, executor: executor, emitter: emitter}
}

// Classify routes req to an intent. It never returns an error: when the
// backend fails or produces an unusable classification, the fallback intent
// is substituted and the anomaly is recorded.
func (r *Router) Classify(ctx context.Context, req Request) Decision {
	prompt := instructionsForSet() + "\n\n" + req.Context

	outcome := r.executor.Run(ctx, func(ctx context.Context) (string, error) {
		return r.generator.Invoke(ctx, backend.Request{Context: prompt})
	}, resilience.Fallback{}, func(attempt int, class resilience.ErrorClass, err error) {
		r.emitAttempt(ctx, req, attempt, class, err)
	})
	if outcome.Status != resilience.StatusOK {
		return r.fallback(ctx, req, outcome.Attempts, fmt.Sprintf("classification call failed: %v", outcome.Err))
	}

	extracted := payload.Extract(outcome.Value)
	if !extracted.Found {
		return r.fallback(ctx, req, outcome.Attempts, "classification output has no structured block")
	}
	result, err := payload.ValidateRouter(extracted.Block)
	if err != nil {
		return r.fallback(ctx, req, outcome.Attempts, fmt.Sprintf("classification output rejected: %v", err))
	}

	decision := Decision{
		Intent:     result.Intent,
		Confidence: result.Confidence,
		Note:       result.Note,
		Attempts:   outcome.Attempts,
	}
	_ = r.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:   telemetry.EventRouterDecision,
		Severity:    string(telemetry.SeverityInfo),
		CampaignID:  req.CampaignID,
		SessionID:   req.SessionID,
		HandlerType: string(decision.Intent),
		Outcome:     "classified",
		Attributes: map[string]any{
			"confidence": string(decision.Confidence),
			"attempts":   decision.Attempts,
		},
	})
	return decision
}

// fallback substitutes the deterministic fallback intent and records the
// anomaly with the rejection reason.
func (r *Router) fallback(ctx context.Context, req Request, attempts int, reason string) Decision {
	_ = r.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:   telemetry.EventRouterAnomaly,
		Severity:    string(telemetry.SeverityWarn),
		CampaignID:  req.CampaignID,
		SessionID:   req.SessionID,
		HandlerType: string(intent.Fallback),
		Outcome:     "fallback",
		Attributes: map[string]any{
			"reason":   reason,
			"attempts": attempts,
		},
	})
	return Decision{
		Intent:     intent.Fallback,
		Confidence: intent.ConfidenceLow,
		FellBack:   true,
		Attempts:   attempts,
	}
}

func (r *Router) emitAttempt(ctx context.Context, req Request, attempt int, class resilience.ErrorClass, err error) {
	severity := telemetry.SeverityInfo
	outcome := "success"
	attrs := map[string]any{"attempt": attempt}
	if err != nil {
		severity = telemetry.SeverityWarn
		outcome = "failure"
		attrs["error_class"] = string(class)
		attrs["error_code"] = string(backend.DomainCode(err))
	}
	_ = r.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:   telemetry.EventBackendAttempt,
		Severity:    string(severity),
		CampaignID:  req.CampaignID,
		SessionID:   req.SessionID,
		HandlerType: "router",
		Outcome:     outcome,
		Attributes:  attrs,
	})
}

func instructionsForSet() string {
	names := make([]string, 0, len(intent.All()))
	for _, it := range intent.All() {
		names = append(names, string(it))
	}
	return fmt.Sprintf(classifyInstructions, strings.Join(names, ", "), intent.Fallback)
}
