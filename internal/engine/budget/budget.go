// Package budget measures and bounds assembled context text per handler.
//
// Sizes are approximate token counts derived from rune length. Trimming
// always preserves the most recent content: text is truncated from the
// front, never the tail, because recency carries more narrative value than
// earlier context.
package budget

import "unicode/utf8"

// HandlerRouter is the handler-type key for the intent router's bounded
// classification context. The remaining keys are the intent values.
const HandlerRouter = "router"

// runesPerToken is the rune-to-token approximation used by Measure.
const runesPerToken = 4

// defaultCap bounds context for handler types missing from the cap table.
const defaultCap = 1024

// defaultCaps is the static per-handler cap table. Values are token
// approximations; external configuration may override any entry.
func defaultCaps() map[string]int {
	return map[string]int{
		HandlerRouter:   768,
		"narrate_short": 2048,
		"narrate_long":  4096,
		"answer_world":  3072,
		"answer_rules":  2048,
		"npc_dialogue":  3072,
		"combat_design": 4096,
		"travel":        2048,
		"gameplay":      3072,
	}
}

// Measure returns the approximate token size of text.
func Measure(text string) int {
	runes := utf8.RuneCountInString(text)
	return (runes + runesPerToken - 1) / runesPerToken
}

// Trim truncates text from the front so that Measure(result) <= limit.
// A non-positive limit yields empty text. Trim never fails.
func Trim(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	maxRunes := limit * runesPerToken
	runes := utf8.RuneCountInString(text)
	if runes <= maxRunes {
		return text
	}
	drop := runes - maxRunes
	for i := range text {
		if drop == 0 {
			return text[i:]
		}
		drop--
	}
	return ""
}

// Validation reports how a text measures against a handler's cap.
type Validation struct {
	WithinBudget bool
	Measured     int
	Cap          int
	// UsageRatio is Measured/Cap; values above 1 quantify overflow.
	UsageRatio float64
}

// Caps is an immutable per-handler cap table.
type Caps struct {
	perHandler map[string]int
}

// NewCaps builds a cap table from the static defaults with optional
// per-handler overrides applied on top. Non-positive overrides are kept
// as configured; the Context Assembler surfaces them as errors.
func NewCaps(overrides map[string]int) Caps {
	table := defaultCaps()
	for handler, limit := range overrides {
		table[handler] = limit
	}
	return Caps{perHandler: table}
}

// For returns the cap for a handler type, or a conservative default for
// unknown handler types.
func (c Caps) For(handler string) int {
	if limit, ok := c.perHandler[handler]; ok {
		return limit
	}
	return defaultCap
}

// Validate measures text against the handler's cap.
func (c Caps) Validate(handler string, text string) Validation {
	limit := c.For(handler)
	measured := Measure(text)
	ratio := 0.0
	if limit > 0 {
		ratio = float64(measured) / float64(limit)
	}
	return Validation{
		WithinBudget: limit > 0 && measured <= limit,
		Measured:     measured,
		Cap:          limit,
		UsageRatio:   ratio,
	}
}
