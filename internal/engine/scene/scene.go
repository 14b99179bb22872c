// Package scene holds the canonical narrative snapshot for a session and the
// merge rules that mutate it.
//
// The scene state is owned exclusively by its session and is only ever
// mutated through Merge. Every field may be independently unknown; merging a
// patch never nulls out a field that the patch does not mention.
package scene

import (
	"strings"

	"github.com/emberloom/emberloom/internal/errors"
)

// State is the current narrative snapshot: where, who, and when.
type State struct {
	TimeOfDay        string `json:"time_of_day,omitempty"`
	Region           string `json:"region,omitempty"`
	SubRegion        string `json:"sub_region,omitempty"`
	SpecificLocation string `json:"specific_location,omitempty"`
	// Participants is ordered by narrative relevance; duplicates are allowed.
	Participants       []string `json:"participants,omitempty"`
	Exits              []string `json:"exits,omitempty"`
	HostileEnvironment bool     `json:"hostile_environment,omitempty"`
}

// Patch is a partial update to scene state. Nil fields are no-ops; lists are
// replaced wholesale, so callers intending incremental change must pass the
// full desired list.
type Patch struct {
	TimeOfDay          *string  `json:"time_of_day"`
	Region             *string  `json:"region"`
	SubRegion          *string  `json:"sub_region"`
	SpecificLocation   *string  `json:"specific_location"`
	Participants       []string `json:"participants"`
	Exits              []string `json:"exits"`
	HostileEnvironment *bool    `json:"hostile_environment"`
}

// IsZero reports whether the patch carries no updates.
func (p Patch) IsZero() bool {
	return p.TimeOfDay == nil &&
		p.Region == nil &&
		p.SubRegion == nil &&
		p.SpecificLocation == nil &&
		p.Participants == nil &&
		p.Exits == nil &&
		p.HostileEnvironment == nil
}

// Merge applies patch onto current and returns the new state. Fields absent
// from the patch keep their prior value. Merge is pure: neither input is
// mutated, and applying the same patch twice yields the same state.
func Merge(current State, patch Patch) State {
	next := current
	next.Participants = append([]string(nil), current.Participants...)
	next.Exits = append([]string(nil), current.Exits...)

	if patch.TimeOfDay != nil {
		next.TimeOfDay = *patch.TimeOfDay
	}
	if patch.Region != nil {
		next.Region = *patch.Region
	}
	if patch.SubRegion != nil {
		next.SubRegion = *patch.SubRegion
	}
	if patch.SpecificLocation != nil {
		next.SpecificLocation = *patch.SpecificLocation
	}
	if patch.Participants != nil {
		next.Participants = append([]string(nil), patch.Participants...)
	}
	if patch.Exits != nil {
		next.Exits = append([]string(nil), patch.Exits...)
	}
	if patch.HostileEnvironment != nil {
		next.HostileEnvironment = *patch.HostileEnvironment
	}
	return next
}

// Equal reports whether two states are identical, including list order.
func Equal(a, b State) bool {
	if a.TimeOfDay != b.TimeOfDay ||
		a.Region != b.Region ||
		a.SubRegion != b.SubRegion ||
		a.SpecificLocation != b.SpecificLocation ||
		a.HostileEnvironment != b.HostileEnvironment {
		return false
	}
	if len(a.Participants) != len(b.Participants) || len(a.Exits) != len(b.Exits) {
		return false
	}
	for i := range a.Participants {
		if a.Participants[i] != b.Participants[i] {
			return false
		}
	}
	for i := range a.Exits {
		if a.Exits[i] != b.Exits[i] {
			return false
		}
	}
	return true
}

// MemoryType categorizes a memory write for the long-term store.
type MemoryType string

const (
	MemoryEvent        MemoryType = "event"
	MemoryPreference   MemoryType = "preference"
	MemoryRelationship MemoryType = "relationship"
	MemoryQuestUpdate  MemoryType = "quest_update"
	MemoryLoreUse      MemoryType = "lore_use"
)

// NormalizeMemoryType canonicalizes a raw memory type and reports whether it
// belongs to the closed set.
func NormalizeMemoryType(raw string) (MemoryType, bool) {
	switch MemoryType(strings.ToLower(strings.TrimSpace(raw))) {
	case MemoryEvent:
		return MemoryEvent, true
	case MemoryPreference:
		return MemoryPreference, true
	case MemoryRelationship:
		return MemoryRelationship, true
	case MemoryQuestUpdate:
		return MemoryQuestUpdate, true
	case MemoryLoreUse:
		return MemoryLoreUse, true
	}
	return "", false
}

// MemoryWrite is an append-only note destined for the long-term memory store.
// It is never edited after creation.
type MemoryWrite struct {
	Type    MemoryType `json:"type"`
	Keys    []string   `json:"keys"`
	Summary string     `json:"summary"`
}

// ValidateMemoryWrite checks the write's type against the closed set.
func ValidateMemoryWrite(write MemoryWrite) error {
	if _, ok := NormalizeMemoryType(string(write.Type)); !ok {
		return errors.Newf(errors.CodeMemoryInvalidType, "memory type %q is not in the closed set", write.Type)
	}
	return nil
}
