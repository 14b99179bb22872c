package router

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emberloom/emberloom/internal/engine/backend"
	"github.com/emberloom/emberloom/internal/engine/intent"
	"github.com/emberloom/emberloom/internal/engine/resilience"
	"github.com/emberloom/emberloom/internal/storage"
	"github.com/emberloom/emberloom/internal/telemetry"
)

type stubGenerator struct {
	outputs []string
	errs    []error
	calls   int
}

func (g *stubGenerator) Invoke(_ context.Context, _ backend.Request) (string, error) {
	i := g.calls
	g.calls++
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(g.outputs) {
		return g.outputs[i], nil
	}
	return "", backend.NewCallError(backend.CodeInternal, "no scripted output")
}

type recordingStore struct {
	events []storage.TelemetryEvent
}

func (s *recordingStore) AppendTelemetryEvent(_ context.Context, evt storage.TelemetryEvent) error {
	s.events = append(s.events, evt)
	return nil
}

func newTestRouter(gen backend.Generator, store storage.TelemetryStore) *Router {
	executor := resilience.NewExecutor(3, time.Millisecond, 4*time.Millisecond, resilience.ClassifierFunc(backend.Classify))
	var emitter *telemetry.Emitter
	if store != nil {
		emitter = telemetry.NewEmitter(store)
	}
	return New(gen, executor, emitter)
}

func eventNames(events []storage.TelemetryEvent) []string {
	names := make([]string, 0, len(events))
	for _, evt := range events {
		names = append(names, evt.EventName)
	}
	return names
}

func TestClassifyValidOutput(t *testing.T) {
	gen := &stubGenerator{outputs: []string{
		"Routing it now.\n```json\n{\"intent\": \"gameplay\", \"confidence\": \"high\", \"note\": \"skill check\"}\n```",
	}}
	store := &recordingStore{}
	r := newTestRouter(gen, store)

	got := r.Classify(context.Background(), Request{CampaignID: "c1", SessionID: "s1", Context: "Player: I pick the lock."})
	if got.Intent != intent.Gameplay {
		t.Fatalf("intent = %q, want %q", got.Intent, intent.Gameplay)
	}
	if got.Confidence != intent.ConfidenceHigh {
		t.Fatalf("confidence = %q, want high", got.Confidence)
	}
	if got.FellBack {
		t.Fatal("valid classification should not fall back")
	}

	names := eventNames(store.events)
	if len(names) != 2 || names[0] != telemetry.EventBackendAttempt || names[1] != telemetry.EventRouterDecision {
		t.Fatalf("events = %v", names)
	}
}

func TestClassifyOutOfSetFallsBack(t *testing.T) {
	gen := &stubGenerator{outputs: []string{
		"```json\n{\"intent\": \"summon_dragon\", \"confidence\": \"high\"}\n```",
	}}
	store := &recordingStore{}
	r := newTestRouter(gen, store)

	got := r.Classify(context.Background(), Request{Context: "Player: hello"})
	if got.Intent != intent.Fallback {
		t.Fatalf("intent = %q, want fallback %q", got.Intent, intent.Fallback)
	}
	if !got.FellBack {
		t.Fatal("expected FellBack")
	}
	if got.Confidence != intent.ConfidenceLow {
		t.Fatalf("confidence = %q, want low", got.Confidence)
	}

	var sawAnomaly bool
	for _, evt := range store.events {
		if evt.EventName == telemetry.EventRouterAnomaly {
			sawAnomaly = true
		}
		if evt.EventName == telemetry.EventRouterDecision {
			t.Fatal("fallback must not be recorded as a decision")
		}
	}
	if !sawAnomaly {
		t.Fatalf("missing anomaly event, got %v", eventNames(store.events))
	}
}

func TestClassifyNoStructuredBlockFallsBack(t *testing.T) {
	gen := &stubGenerator{outputs: []string{"I think this is a travel request."}}
	r := newTestRouter(gen, nil)

	got := r.Classify(context.Background(), Request{Context: "Player: we head north"})
	if got.Intent != intent.Fallback || !got.FellBack {
		t.Fatalf("decision = %+v, want fallback", got)
	}
}

func TestClassifyRetriesTransientFailure(t *testing.T) {
	gen := &stubGenerator{
		errs: []error{backend.NewCallError(backend.CodeTimeout, "slow"), nil},
		outputs: []string{"",
			"```json\n{\"intent\": \"travel\", \"confidence\": \"medium\"}\n```",
		},
	}
	store := &recordingStore{}
	r := newTestRouter(gen, store)

	got := r.Classify(context.Background(), Request{Context: "Player: we head north"})
	if got.Intent != intent.Travel {
		t.Fatalf("intent = %q, want travel", got.Intent)
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.calls)
	}
}

func TestClassifyExhaustedFallsBack(t *testing.T) {
	gen := &stubGenerator{errs: []error{
		backend.NewCallError(backend.CodeConnection, "down"),
		backend.NewCallError(backend.CodeConnection, "down"),
		backend.NewCallError(backend.CodeConnection, "down"),
	}}
	store := &recordingStore{}
	r := newTestRouter(gen, store)

	got := r.Classify(context.Background(), Request{Context: "Player: hail"})
	if got.Intent != intent.Fallback || !got.FellBack {
		t.Fatalf("decision = %+v, want fallback", got)
	}
	if got.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", got.Attempts)
	}
}

func TestClassifyPromptListsClosedSet(t *testing.T) {
	prompt := instructionsForSet()
	for _, it := range intent.All() {
		if !strings.Contains(prompt, string(it)) {
			t.Fatalf("prompt missing intent %q:\n%s", it, prompt)
		}
	}
}

func TestClassifyPromptCarriesAmbiguityPolicy(t *testing.T) {
	prompt := instructionsForSet()
	wants := []string{
		"the one that would happen first",
		"wait for a later turn",
		"answer " + string(intent.Fallback) + " with low confidence",
	}
	for _, want := range wants {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
