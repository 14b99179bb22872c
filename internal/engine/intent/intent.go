// Package intent defines the closed set of player intents the router
// classifies into. Each intent maps to exactly one specialist handler.
package intent

import "strings"

// Intent identifies the specialist handler dispatched for a turn.
type Intent string

const (
	// NarrateShort produces a brief narration beat. It is also the
	// deterministic fallback when classification is rejected or uncertain.
	NarrateShort Intent = "narrate_short"
	// NarrateLong produces an extended descriptive narration.
	NarrateLong Intent = "narrate_long"
	// AnswerWorld answers an in-world question from lore and scene state.
	AnswerWorld Intent = "answer_world"
	// AnswerRules answers an out-of-character question about game mechanics.
	AnswerRules Intent = "answer_rules"
	// NPCDialogue voices a non-player character in conversation.
	NPCDialogue Intent = "npc_dialogue"
	// CombatDesign stages an encounter for the current cast of opponents.
	CombatDesign Intent = "combat_design"
	// Travel moves the party between locations.
	Travel Intent = "travel"
	// Gameplay resolves a mechanical action such as a skill check.
	Gameplay Intent = "gameplay"
)

// Fallback is the intent substituted when classification fails or the
// classified value falls outside the closed set.
const Fallback = NarrateShort

// All returns every intent in the closed set.
func All() []Intent {
	return []Intent{
		NarrateShort,
		NarrateLong,
		AnswerWorld,
		AnswerRules,
		NPCDialogue,
		CombatDesign,
		Travel,
		Gameplay,
	}
}

// Normalize canonicalizes a raw intent value and reports whether it belongs
// to the closed set.
func Normalize(raw string) (Intent, bool) {
	candidate := Intent(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range All() {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}

// Confidence is an ordinal classification confidence used for logging only;
// it never blocks dispatch.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// NormalizeConfidence canonicalizes a raw confidence value, defaulting to low.
func NormalizeConfidence(raw string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(raw))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
