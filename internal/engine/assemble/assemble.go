// Package assemble builds the exact input context for a chosen handler from
// session state, bounded by the per-handler token budget.
//
// The router gets only a recent-events recap so classification stays cheap;
// specialist handlers get the full bundle of scene state, recap, and the
// player's latest input. Returned context is always within budget for its
// handler type.
package assemble

import (
	"context"
	"fmt"
	"strings"

	"github.com/emberloom/emberloom/internal/engine/budget"
	"github.com/emberloom/emberloom/internal/engine/intent"
	"github.com/emberloom/emberloom/internal/engine/scene"
	"github.com/emberloom/emberloom/internal/errors"
	"github.com/emberloom/emberloom/internal/storage"
	"github.com/emberloom/emberloom/internal/telemetry"
)

// defaultRecentTurns bounds how many turns feed the recap section.
const defaultRecentTurns = 8

// RecentTurn is one line of the recent-events recap.
type RecentTurn struct {
	TurnNumber int
	UserInput  string
	Summary    string
}

// Input is the session context a handler's prompt is assembled from.
type Input struct {
	CampaignID string
	SessionID  string
	Scene      scene.State
	Recent     []RecentTurn
	UserInput  string
}

// Context is the ephemeral, handler-scoped assembly result. It is recomputed
// every turn and never persisted.
type Context struct {
	Handler  string
	Text     string
	Budget   int
	Measured int
	Trimmed  bool
}

// Assembler composes budget-bounded handler context.
type Assembler struct {
	caps    budget.Caps
	emitter *telemetry.Emitter
}

// New creates an assembler with the given cap table. The emitter may be nil.
func New(caps budget.Caps, emitter *telemetry.Emitter) *Assembler {
	return &Assembler{caps: caps, emitter: emitter}
}

// BuildRouter assembles the bounded classification context: a recap of
// recent events and the player's input, never full scene detail.
func (a *Assembler) BuildRouter(ctx context.Context, in Input) (Context, error) {
	var b strings.Builder
	writeRecap(&b, in.Recent)
	b.WriteString("Player: ")
	b.WriteString(strings.TrimSpace(in.UserInput))
	b.WriteString("\n")
	return a.bound(ctx, budget.HandlerRouter, in, b.String())
}

// Build assembles the full context bundle for a specialist handler: current
// scene state, recent recap, and the player's latest input.
func (a *Assembler) Build(ctx context.Context, handler intent.Intent, in Input) (Context, error) {
	var b strings.Builder
	writeScene(&b, in.Scene)
	writeRecap(&b, in.Recent)
	b.WriteString("Player: ")
	b.WriteString(strings.TrimSpace(in.UserInput))
	b.WriteString("\n")
	return a.bound(ctx, string(handler), in, b.String())
}

// bound validates the composition against the handler's cap, trims when it
// overflows, and records the trim with the overflow ratio.
func (a *Assembler) bound(ctx context.Context, handler string, in Input, text string) (Context, error) {
	limit := a.caps.For(handler)
	if limit <= 0 {
		return Context{}, errors.Newf(errors.CodeBudgetNonPositiveCap, "handler %q has non-positive budget cap %d", handler, limit)
	}

	validation := a.caps.Validate(handler, text)
	if validation.WithinBudget {
		return Context{
			Handler:  handler,
			Text:     text,
			Budget:   limit,
			Measured: validation.Measured,
		}, nil
	}

	trimmed := budget.Trim(text, limit)
	_ = a.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:   telemetry.EventContextTrimmed,
		Severity:    string(telemetry.SeverityWarn),
		CampaignID:  in.CampaignID,
		SessionID:   in.SessionID,
		HandlerType: handler,
		Outcome:     "trimmed",
		Attributes: map[string]any{
			"measured":    validation.Measured,
			"cap":         validation.Cap,
			"usage_ratio": validation.UsageRatio,
		},
	})
	return Context{
		Handler:  handler,
		Text:     trimmed,
		Budget:   limit,
		Measured: budget.Measure(trimmed),
		Trimmed:  true,
	}, nil
}

func writeScene(b *strings.Builder, st scene.State) {
	b.WriteString("Scene:\n")
	if st.TimeOfDay != "" {
		fmt.Fprintf(b, "  time: %s\n", st.TimeOfDay)
	}
	location := joinNonEmpty(", ", st.Region, st.SubRegion, st.SpecificLocation)
	if location != "" {
		fmt.Fprintf(b, "  location: %s\n", location)
	}
	if len(st.Participants) > 0 {
		fmt.Fprintf(b, "  present: %s\n", strings.Join(st.Participants, ", "))
	}
	if len(st.Exits) > 0 {
		fmt.Fprintf(b, "  exits: %s\n", strings.Join(st.Exits, ", "))
	}
	if st.HostileEnvironment {
		b.WriteString("  danger: hostile environment\n")
	}
}

func writeRecap(b *strings.Builder, recent []RecentTurn) {
	if len(recent) == 0 {
		return
	}
	if len(recent) > defaultRecentTurns {
		recent = recent[len(recent)-defaultRecentTurns:]
	}
	b.WriteString("Recent events:\n")
	for _, turn := range recent {
		summary := strings.TrimSpace(turn.Summary)
		if summary == "" {
			summary = strings.TrimSpace(turn.UserInput)
		}
		fmt.Fprintf(b, "  %d. %s\n", turn.TurnNumber, summary)
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, strings.TrimSpace(part))
		}
	}
	return strings.Join(kept, sep)
}
