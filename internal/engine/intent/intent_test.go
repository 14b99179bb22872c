package intent

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Intent
		ok   bool
	}{
		{name: "exact match", raw: "gameplay", want: Gameplay, ok: true},
		{name: "trims and lowercases", raw: "  NPC_Dialogue ", want: NPCDialogue, ok: true},
		{name: "combat design", raw: "combat_design", want: CombatDesign, ok: true},
		{name: "out of set", raw: "dance_battle", ok: false},
		{name: "empty", raw: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			if ok != tt.ok {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAllCoversClosedSet(t *testing.T) {
	all := All()
	if len(all) != 8 {
		t.Fatalf("intent set size = %d, want 8", len(all))
	}
	seen := make(map[Intent]bool, len(all))
	for _, it := range all {
		if seen[it] {
			t.Fatalf("duplicate intent %q", it)
		}
		seen[it] = true
	}
	if !seen[Fallback] {
		t.Fatalf("fallback intent %q missing from closed set", Fallback)
	}
}

func TestNormalizeConfidence(t *testing.T) {
	if got := NormalizeConfidence(" HIGH "); got != ConfidenceHigh {
		t.Fatalf("NormalizeConfidence = %q, want %q", got, ConfidenceHigh)
	}
	if got := NormalizeConfidence("medium"); got != ConfidenceMedium {
		t.Fatalf("NormalizeConfidence = %q, want %q", got, ConfidenceMedium)
	}
	if got := NormalizeConfidence("unsure"); got != ConfidenceLow {
		t.Fatalf("NormalizeConfidence = %q, want %q", got, ConfidenceLow)
	}
}
