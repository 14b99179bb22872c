package scene

import (
	"testing"

	"github.com/emberloom/emberloom/internal/errors"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestMergeOverwritesPresentFields(t *testing.T) {
	current := State{
		TimeOfDay:    "dusk",
		Region:       "Thornwood",
		Participants: []string{"Guard1", "Guard2"},
		Exits:        []string{"north gate"},
	}
	patch := Patch{
		TimeOfDay:    strPtr("night"),
		Participants: []string{"Guard1"},
	}

	merged := Merge(current, patch)

	if merged.TimeOfDay != "night" {
		t.Fatalf("TimeOfDay = %q, want %q", merged.TimeOfDay, "night")
	}
	if merged.Region != "Thornwood" {
		t.Fatalf("Region = %q, want untouched %q", merged.Region, "Thornwood")
	}
	if len(merged.Participants) != 1 || merged.Participants[0] != "Guard1" {
		t.Fatalf("Participants = %v, want wholesale replacement [Guard1]", merged.Participants)
	}
	if len(merged.Exits) != 1 || merged.Exits[0] != "north gate" {
		t.Fatalf("Exits = %v, want untouched", merged.Exits)
	}
}

func TestMergeListsReplacedWholesale(t *testing.T) {
	current := State{Participants: []string{"A", "B"}}
	merged := Merge(current, Patch{Participants: []string{"C"}})

	if len(merged.Participants) != 1 || merged.Participants[0] != "C" {
		t.Fatalf("Participants = %v, want [C] (replace, not append)", merged.Participants)
	}

	// An explicit empty list clears; a nil list is a no-op.
	cleared := Merge(current, Patch{Participants: []string{}})
	if len(cleared.Participants) != 0 {
		t.Fatalf("Participants = %v, want cleared by explicit empty list", cleared.Participants)
	}
	untouched := Merge(current, Patch{})
	if len(untouched.Participants) != 2 {
		t.Fatalf("Participants = %v, want untouched by nil list", untouched.Participants)
	}
}

func TestMergeNoOpLaw(t *testing.T) {
	current := State{
		TimeOfDay:          "dawn",
		Region:             "Mirefall",
		SubRegion:          "Old Docks",
		SpecificLocation:   "the sunken pier",
		Participants:       []string{"Captain Issa", "Deckhand"},
		Exits:              []string{"gangway", "water"},
		HostileEnvironment: true,
	}

	merged := Merge(current, Patch{})
	if !Equal(merged, current) {
		t.Fatalf("Merge with empty patch = %+v, want %+v", merged, current)
	}
}

func TestMergeIdempotent(t *testing.T) {
	current := State{TimeOfDay: "noon", Participants: []string{"A", "B"}}
	patch := Patch{
		TimeOfDay:          strPtr("dusk"),
		Participants:       []string{"A", "B", "C"},
		HostileEnvironment: boolPtr(true),
	}

	once := Merge(current, patch)
	twice := Merge(once, patch)
	if !Equal(once, twice) {
		t.Fatalf("merge not idempotent: once %+v, twice %+v", once, twice)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	current := State{Participants: []string{"A"}}
	patch := Patch{Participants: []string{"B"}}

	merged := Merge(current, patch)
	merged.Participants[0] = "Z"

	if current.Participants[0] != "A" {
		t.Fatalf("current mutated: %v", current.Participants)
	}
	if patch.Participants[0] != "B" {
		t.Fatalf("patch mutated: %v", patch.Participants)
	}
}

func TestPatchIsZero(t *testing.T) {
	if !(Patch{}).IsZero() {
		t.Fatal("empty patch should be zero")
	}
	if (Patch{Exits: []string{}}).IsZero() {
		t.Fatal("patch with explicit empty list is not zero")
	}
	if (Patch{HostileEnvironment: boolPtr(false)}).IsZero() {
		t.Fatal("patch with explicit false flag is not zero")
	}
}

func TestNormalizeMemoryType(t *testing.T) {
	tests := []struct {
		raw  string
		want MemoryType
		ok   bool
	}{
		{raw: "event", want: MemoryEvent, ok: true},
		{raw: " Quest_Update ", want: MemoryQuestUpdate, ok: true},
		{raw: "lore_use", want: MemoryLoreUse, ok: true},
		{raw: "gossip", ok: false},
		{raw: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeMemoryType(tt.raw)
			if ok != tt.ok {
				t.Fatalf("NormalizeMemoryType(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("NormalizeMemoryType(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidateMemoryWrite(t *testing.T) {
	valid := MemoryWrite{Type: MemoryRelationship, Keys: []string{"Issa", "party"}, Summary: "earned trust"}
	if err := ValidateMemoryWrite(valid); err != nil {
		t.Fatalf("ValidateMemoryWrite error = %v", err)
	}

	err := ValidateMemoryWrite(MemoryWrite{Type: "rumor", Summary: "..."})
	if err == nil {
		t.Fatal("expected error for out-of-set memory type")
	}
	if !errors.IsCode(err, errors.CodeMemoryInvalidType) {
		t.Fatalf("error code = %q, want %q", errors.GetCode(err), errors.CodeMemoryInvalidType)
	}
}
