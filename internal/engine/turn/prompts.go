package turn

import (
	"github.com/emberloom/emberloom/internal/engine/backend"
	"github.com/emberloom/emberloom/internal/engine/intent"
)

// PromptConfig is the immutable per-handler instruction table, fixed at
// construction. Overrides replace whole entries; there is no process-wide
// mutable template state.
type PromptConfig struct {
	perHandler map[intent.Intent]string
}

// NewPromptConfig builds a prompt table from the defaults with optional
// per-handler overrides.
func NewPromptConfig(overrides map[intent.Intent]string) PromptConfig {
	table := defaultPrompts()
	for handler, prompt := range overrides {
		table[handler] = prompt
	}
	return PromptConfig{perHandler: table}
}

// For returns the instruction text for a handler.
func (c PromptConfig) For(handler intent.Intent) string {
	if c.perHandler == nil {
		return defaultPrompts()[handler]
	}
	return c.perHandler[handler]
}

const narrativeShape = `Reply with in-character prose, then a fenced JSON block: {"summary": "...", "scene": {...}, "memories": [...]}. The scene patch carries only changed fields; lists replace the previous list wholesale.`

func defaultPrompts() map[intent.Intent]string {
	return map[intent.Intent]string{
		intent.NarrateShort: "Narrate a brief beat advancing the player's action. " + narrativeShape,
		intent.NarrateLong:  "Narrate an extended, descriptive passage for the player's action. " + narrativeShape,
		intent.AnswerWorld:  "Answer the player's in-world question from established lore and the current scene. " + narrativeShape,
		intent.AnswerRules:  "Answer the player's question about game mechanics, out of character. " + narrativeShape,
		intent.Travel:       "Resolve the party's travel, narrating the journey and arrival. " + narrativeShape,
		intent.Gameplay:     `Resolve the player's mechanical action with the dice roller. Reply with prose, then a fenced JSON block: {"summary": "...", "rolls": [{"check": "...", "total": 0, "detail": "...", "success": true}], "scene": {...}, "memories": [...]}.`,
		intent.NPCDialogue:  `Voice the non-player character in conversation. Reply with prose, then a fenced JSON block: {"speaker": "...", "dialogue": "...", "scene": {...}, "memories": [...]}.`,
		intent.CombatDesign: `Design an encounter for the current cast of opponents. Reply with prose, then a fenced JSON block: {"name": "...", "summary": "...", "opponents": [{"name": "...", "role": "boss|elite|minion|support"}], "memories": [...]}.`,
	}
}

// defaultToolGrants enumerates the tools each handler may exercise. Handlers
// absent from the table get no tools.
func defaultToolGrants() map[intent.Intent][]backend.Tool {
	return map[intent.Intent][]backend.Tool{
		intent.AnswerWorld:  {backend.ToolLoreSearch, backend.ToolMemorySearch},
		intent.AnswerRules:  {backend.ToolLoreSearch},
		intent.NPCDialogue:  {backend.ToolMemorySearch},
		intent.Gameplay:     {backend.ToolDiceRoller},
		intent.CombatDesign: {backend.ToolDiceRoller, backend.ToolLoreSearch},
		intent.Travel:       {backend.ToolLoreSearch},
	}
}
