// Package payload extracts and validates the structured portion of a
// specialist handler's output.
//
// Each handler type maps to exactly one variant of a closed tagged union;
// validation is all-or-nothing. A payload missing a required field is
// rejected outright, never partially accepted, so the State Merger only ever
// sees patches that passed their variant's schema.
package payload

import (
	"encoding/json"
	"strings"

	"github.com/emberloom/emberloom/internal/engine/intent"
	"github.com/emberloom/emberloom/internal/engine/scene"
	"github.com/emberloom/emberloom/internal/errors"
)

// Role classifies an opponent's part in a designed encounter.
type Role string

const (
	RoleBoss    Role = "boss"
	RoleElite   Role = "elite"
	RoleMinion  Role = "minion"
	RoleSupport Role = "support"
)

// NormalizeRole canonicalizes a raw role and reports closed-set membership.
func NormalizeRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleBoss:
		return RoleBoss, true
	case RoleElite:
		return RoleElite, true
	case RoleMinion:
		return RoleMinion, true
	case RoleSupport:
		return RoleSupport, true
	}
	return "", false
}

// RouterResult is the validated output of the intent router.
type RouterResult struct {
	Intent     intent.Intent
	Confidence intent.Confidence
	Note       string
}

// RollResult is one resolved check in a gameplay payload.
type RollResult struct {
	Check   string `json:"check"`
	Total   int    `json:"total"`
	Detail  string `json:"detail,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

// Narrative is the payload variant for narration, question-answering, and
// travel handlers.
type Narrative struct {
	Summary  string              `json:"summary"`
	Scene    *scene.Patch        `json:"scene,omitempty"`
	Memories []scene.MemoryWrite `json:"memories,omitempty"`
}

// Gameplay is the payload variant for mechanical resolution.
type Gameplay struct {
	Summary  string              `json:"summary"`
	Rolls    []RollResult        `json:"rolls"`
	Scene    *scene.Patch        `json:"scene,omitempty"`
	Memories []scene.MemoryWrite `json:"memories,omitempty"`
}

// Dialogue is the payload variant for NPC conversation.
type Dialogue struct {
	Speaker  string              `json:"speaker"`
	Line     string              `json:"dialogue"`
	Scene    *scene.Patch        `json:"scene,omitempty"`
	Memories []scene.MemoryWrite `json:"memories,omitempty"`
}

// Opponent is one staged combatant in an encounter design.
type Opponent struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Encounter is the payload variant for combat design.
type Encounter struct {
	Name      string              `json:"name,omitempty"`
	Summary   string              `json:"summary"`
	Opponents []Opponent          `json:"opponents"`
	Memories  []scene.MemoryWrite `json:"memories,omitempty"`
}

// Payload is the closed tagged union of validated handler outputs. Exactly
// one variant is non-nil, selected by Handler.
type Payload struct {
	Handler   intent.Intent
	Narrative *Narrative
	Gameplay  *Gameplay
	Dialogue  *Dialogue
	Encounter *Encounter
}

// ScenePatch returns the payload's scene patch, or a zero patch when the
// variant carries none.
func (p Payload) ScenePatch() scene.Patch {
	switch {
	case p.Narrative != nil && p.Narrative.Scene != nil:
		return *p.Narrative.Scene
	case p.Gameplay != nil && p.Gameplay.Scene != nil:
		return *p.Gameplay.Scene
	case p.Dialogue != nil && p.Dialogue.Scene != nil:
		return *p.Dialogue.Scene
	}
	return scene.Patch{}
}

// MemoryWrites returns the payload's memory writes, if any.
func (p Payload) MemoryWrites() []scene.MemoryWrite {
	switch {
	case p.Narrative != nil:
		return p.Narrative.Memories
	case p.Gameplay != nil:
		return p.Gameplay.Memories
	case p.Dialogue != nil:
		return p.Dialogue.Memories
	case p.Encounter != nil:
		return p.Encounter.Memories
	}
	return nil
}

// Summary returns the short recap line for the turn log.
func (p Payload) Summary() string {
	switch {
	case p.Narrative != nil:
		return p.Narrative.Summary
	case p.Gameplay != nil:
		return p.Gameplay.Summary
	case p.Dialogue != nil:
		return p.Dialogue.Line
	case p.Encounter != nil:
		return p.Encounter.Summary
	}
	return ""
}

// ValidateRouter checks a router classification block against the strict
// router schema: intent must be in the closed set or the classification is
// rejected whole.
func ValidateRouter(block json.RawMessage) (RouterResult, error) {
	var decoded struct {
		Intent     string `json:"intent"`
		Confidence string `json:"confidence"`
		Note       string `json:"note"`
	}
	if err := json.Unmarshal(block, &decoded); err != nil {
		return RouterResult{}, errors.Wrap(errors.CodePayloadMalformedJSON, "decode router output", err)
	}
	if strings.TrimSpace(decoded.Intent) == "" {
		return RouterResult{}, errors.New(errors.CodePayloadMissingField, "router output missing intent")
	}
	classified, ok := intent.Normalize(decoded.Intent)
	if !ok {
		return RouterResult{}, errors.Newf(errors.CodeRouterIntentOutOfSet, "intent %q is not in the closed set", decoded.Intent)
	}
	return RouterResult{
		Intent:     classified,
		Confidence: intent.NormalizeConfidence(decoded.Confidence),
		Note:       strings.TrimSpace(decoded.Note),
	}, nil
}

// Validate checks a structured block against the schema for the given
// handler type and returns the normalized payload variant.
func Validate(handler intent.Intent, block json.RawMessage) (Payload, error) {
	if block == nil {
		return Payload{}, errors.New(errors.CodePayloadNotStructured, "no structured block in output")
	}

	switch handler {
	case intent.NarrateShort, intent.NarrateLong, intent.AnswerWorld, intent.AnswerRules, intent.Travel:
		return validateNarrative(handler, block)
	case intent.Gameplay:
		return validateGameplay(block)
	case intent.NPCDialogue:
		return validateDialogue(block)
	case intent.CombatDesign:
		return validateEncounter(block)
	}
	return Payload{}, errors.Newf(errors.CodePayloadUnknownHandler, "handler %q has no payload schema", handler)
}

func validateNarrative(handler intent.Intent, block json.RawMessage) (Payload, error) {
	var decoded Narrative
	if err := json.Unmarshal(block, &decoded); err != nil {
		return Payload{}, errors.Wrap(errors.CodePayloadMalformedJSON, "decode narrative payload", err)
	}
	decoded.Summary = strings.TrimSpace(decoded.Summary)
	if decoded.Summary == "" {
		return Payload{}, errors.New(errors.CodePayloadMissingField, "narrative payload missing summary")
	}
	if err := validateMemories(decoded.Memories); err != nil {
		return Payload{}, err
	}
	return Payload{Handler: handler, Narrative: &decoded}, nil
}

func validateGameplay(block json.RawMessage) (Payload, error) {
	var decoded Gameplay
	if err := json.Unmarshal(block, &decoded); err != nil {
		return Payload{}, errors.Wrap(errors.CodePayloadMalformedJSON, "decode gameplay payload", err)
	}
	decoded.Summary = strings.TrimSpace(decoded.Summary)
	if decoded.Summary == "" {
		return Payload{}, errors.New(errors.CodePayloadMissingField, "gameplay payload missing summary")
	}
	if len(decoded.Rolls) == 0 {
		return Payload{}, errors.New(errors.CodePayloadMissingField, "gameplay payload missing rolls")
	}
	for _, roll := range decoded.Rolls {
		if strings.TrimSpace(roll.Check) == "" {
			return Payload{}, errors.New(errors.CodePayloadInvalidFieldValue, "gameplay roll missing check name")
		}
	}
	if err := validateMemories(decoded.Memories); err != nil {
		return Payload{}, err
	}
	return Payload{Handler: intent.Gameplay, Gameplay: &decoded}, nil
}

func validateDialogue(block json.RawMessage) (Payload, error) {
	var decoded Dialogue
	if err := json.Unmarshal(block, &decoded); err != nil {
		return Payload{}, errors.Wrap(errors.CodePayloadMalformedJSON, "decode dialogue payload", err)
	}
	decoded.Speaker = strings.TrimSpace(decoded.Speaker)
	decoded.Line = strings.TrimSpace(decoded.Line)
	if decoded.Speaker == "" {
		return Payload{}, errors.New(errors.CodePayloadMissingField, "dialogue payload missing speaker")
	}
	if decoded.Line == "" {
		return Payload{}, errors.New(errors.CodePayloadMissingField, "dialogue payload missing dialogue")
	}
	if err := validateMemories(decoded.Memories); err != nil {
		return Payload{}, err
	}
	return Payload{Handler: intent.NPCDialogue, Dialogue: &decoded}, nil
}

func validateEncounter(block json.RawMessage) (Payload, error) {
	var decoded Encounter
	if err := json.Unmarshal(block, &decoded); err != nil {
		return Payload{}, errors.Wrap(errors.CodePayloadMalformedJSON, "decode encounter payload", err)
	}
	decoded.Summary = strings.TrimSpace(decoded.Summary)
	if decoded.Summary == "" {
		return Payload{}, errors.New(errors.CodePayloadMissingField, "encounter payload missing summary")
	}
	if len(decoded.Opponents) == 0 {
		return Payload{}, errors.New(errors.CodePayloadMissingField, "encounter payload missing opponents")
	}
	for i, opponent := range decoded.Opponents {
		name := strings.TrimSpace(opponent.Name)
		if name == "" {
			return Payload{}, errors.New(errors.CodePayloadInvalidFieldValue, "encounter opponent missing name")
		}
		role, ok := NormalizeRole(string(opponent.Role))
		if !ok {
			return Payload{}, errors.Newf(errors.CodePayloadInvalidEnumValue, "opponent role %q is not in the closed set", opponent.Role)
		}
		decoded.Opponents[i] = Opponent{Name: name, Role: role}
	}
	if err := validateMemories(decoded.Memories); err != nil {
		return Payload{}, err
	}
	return Payload{Handler: intent.CombatDesign, Encounter: &decoded}, nil
}

func validateMemories(writes []scene.MemoryWrite) error {
	for _, write := range writes {
		if err := scene.ValidateMemoryWrite(write); err != nil {
			return err
		}
	}
	return nil
}
