// Package combat tracks whether a staged encounter design is still
// applicable as scene state drifts.
//
// A plan is a small state machine: NONE (no plan), PREPARED (plan matches
// current conditions), STALE (conditions drifted since design). A stale plan
// is kept as revision material for the next encounter design and discarded
// only after going unused past a configurable turn threshold.
package combat

import (
	"sort"
	"strings"

	"github.com/emberloom/emberloom/internal/engine/scene"
)

// State is a combat plan's readiness state.
type State string

const (
	StateNone     State = "NONE"
	StatePrepared State = "PREPARED"
	StateStale    State = "STALE"
)

// defaultDiscardAfter is the number of turns a stale plan survives unused.
const defaultDiscardAfter = 3

// Signature is the canonical, order-independent identity of the cast a plan
// was designed against.
type Signature []string

// NewSignature canonicalizes participant names into a signature: trimmed,
// case-folded, deduplicated, and sorted.
func NewSignature(names []string) Signature {
	seen := make(map[string]bool, len(names))
	sig := make(Signature, 0, len(names))
	for _, name := range names {
		canonical := strings.ToLower(strings.TrimSpace(name))
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		sig = append(sig, canonical)
	}
	sort.Strings(sig)
	return sig
}

// Equal reports whether two signatures identify the same cast.
func (s Signature) Equal(other Signature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the signature for logs.
func (s Signature) String() string {
	return strings.Join(s, ",")
}

// Opponent is one staged enemy in a plan.
type Opponent struct {
	Name string
	Role string
}

// Plan is a staged encounter design tied to the cast and danger flag that
// were current when it was designed.
type Plan struct {
	Name      string
	Summary   string
	Opponents []Opponent

	NPCSignature      Signature
	HostileAtCreation bool

	State          State
	CreatedTurn    int
	StaleSinceTurn int
}

// Prepare stages a freshly designed encounter against the current scene.
// It replaces any prior plan, stale or not.
func Prepare(name, summary string, opponents []Opponent, current scene.State, turn int) *Plan {
	return &Plan{
		Name:              name,
		Summary:           summary,
		Opponents:         opponents,
		NPCSignature:      NewSignature(current.Participants),
		HostileAtCreation: current.HostileEnvironment,
		State:             StatePrepared,
		CreatedTurn:       turn,
	}
}

// Transition records one readiness state change for observability.
type Transition struct {
	From   State
	To     State
	Reason string
}

// Evaluator applies the readiness transition rule once per turn.
type Evaluator struct {
	// DiscardAfter is how many turns a stale plan survives unused before it
	// is discarded.
	DiscardAfter int
}

// NewEvaluator creates an evaluator. Non-positive discardAfter uses the
// default threshold.
func NewEvaluator(discardAfter int) Evaluator {
	if discardAfter <= 0 {
		discardAfter = defaultDiscardAfter
	}
	return Evaluator{DiscardAfter: discardAfter}
}

// Evaluate re-checks plan against the merged scene for this turn and applies
// at most one transition. It reports the transition and whether one occurred.
//
// A prepared plan stays prepared only on an exact cast-and-flag match; any
// drift marks it stale. A stale plan never self-heals back to prepared — it
// is either replaced by a fresh design or discarded after DiscardAfter turns
// unused. Returning StateNone means the plan should be dropped.
func (e Evaluator) Evaluate(plan *Plan, current scene.State, turn int) (Transition, bool) {
	if plan == nil || plan.State == StateNone {
		return Transition{}, false
	}

	switch plan.State {
	case StatePrepared:
		sig := NewSignature(current.Participants)
		if sig.Equal(plan.NPCSignature) && current.HostileEnvironment == plan.HostileAtCreation {
			return Transition{}, false
		}
		plan.State = StateStale
		plan.StaleSinceTurn = turn
		reason := "cast drifted"
		if sig.Equal(plan.NPCSignature) {
			reason = "danger flag drifted"
		}
		return Transition{From: StatePrepared, To: StateStale, Reason: reason}, true
	case StateStale:
		threshold := e.DiscardAfter
		if threshold <= 0 {
			threshold = defaultDiscardAfter
		}
		if turn-plan.StaleSinceTurn >= threshold {
			plan.State = StateNone
			return Transition{From: StateStale, To: StateNone, Reason: "stale plan unused"}, true
		}
	}
	return Transition{}, false
}

// Resolve discards a plan after its encounter actually runs.
func Resolve(plan *Plan) (Transition, bool) {
	if plan == nil || plan.State == StateNone {
		return Transition{}, false
	}
	from := plan.State
	plan.State = StateNone
	return Transition{From: from, To: StateNone, Reason: "encounter resolved"}, true
}
