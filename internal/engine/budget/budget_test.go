package budget

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMeasureRoundsUp(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "single rune", text: "a", want: 1},
		{name: "exact boundary", text: "abcd", want: 1},
		{name: "one past boundary", text: "abcde", want: 2},
		{name: "multibyte runes", text: "日本語の物語", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Measure(tt.text); got != tt.want {
				t.Fatalf("Measure(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestTrimPreservesTail(t *testing.T) {
	text := strings.Repeat("x", 100) + "THE END"
	trimmed := Trim(text, 5)

	if !strings.HasSuffix(text, trimmed) {
		t.Fatalf("trimmed text %q is not a suffix of the original", trimmed)
	}
	if !strings.HasSuffix(trimmed, "THE END") {
		t.Fatalf("trimmed text %q lost the most recent content", trimmed)
	}
	if got := Measure(trimmed); got > 5 {
		t.Fatalf("Measure(trimmed) = %d, want <= 5", got)
	}
}

func TestTrimNonPositiveCap(t *testing.T) {
	if got := Trim("anything", 0); got != "" {
		t.Fatalf("Trim with zero cap = %q, want empty", got)
	}
	if got := Trim("anything", -3); got != "" {
		t.Fatalf("Trim with negative cap = %q, want empty", got)
	}
}

func TestTrimShortTextUnchanged(t *testing.T) {
	if got := Trim("brief", 100); got != "brief" {
		t.Fatalf("Trim = %q, want unchanged text", got)
	}
}

// Property: for random text and random caps, the trimmed result always
// measures within the cap and is always a suffix of the original.
func TestTrimProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdefgh 語夜βΩ")

	for i := 0; i < 200; i++ {
		length := rng.Intn(400)
		runes := make([]rune, length)
		for j := range runes {
			runes[j] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(runes)
		limit := rng.Intn(40) - 2

		trimmed := Trim(text, limit)
		if limit <= 0 {
			if trimmed != "" {
				t.Fatalf("Trim(%q, %d) = %q, want empty", text, limit, trimmed)
			}
			continue
		}
		if got := Measure(trimmed); got > limit {
			t.Fatalf("Measure(Trim(text, %d)) = %d, exceeds cap", limit, got)
		}
		if !strings.HasSuffix(text, trimmed) {
			t.Fatalf("Trim(%q, %d) = %q is not a suffix", text, limit, trimmed)
		}
		if utf8.RuneCountInString(text) <= limit*runesPerToken && trimmed != text {
			t.Fatalf("Trim dropped content that was already within budget")
		}
	}
}

func TestCapsForUnknownHandler(t *testing.T) {
	caps := NewCaps(nil)
	if got := caps.For("imaginary_handler"); got != defaultCap {
		t.Fatalf("For(unknown) = %d, want conservative default %d", got, defaultCap)
	}
}

func TestCapsOverrides(t *testing.T) {
	caps := NewCaps(map[string]int{"gameplay": 64, HandlerRouter: 0})
	if got := caps.For("gameplay"); got != 64 {
		t.Fatalf("For(gameplay) = %d, want 64", got)
	}
	if got := caps.For(HandlerRouter); got != 0 {
		t.Fatalf("For(router) = %d, want configured 0", got)
	}
	if got := caps.For("narrate_long"); got != 4096 {
		t.Fatalf("For(narrate_long) = %d, want default 4096", got)
	}
}

func TestValidate(t *testing.T) {
	caps := NewCaps(map[string]int{"gameplay": 2})

	within := caps.Validate("gameplay", "tiny")
	if !within.WithinBudget {
		t.Fatalf("expected %q within budget: %+v", "tiny", within)
	}
	if within.Measured != 1 || within.Cap != 2 {
		t.Fatalf("Validation = %+v, want measured 1 cap 2", within)
	}

	over := caps.Validate("gameplay", strings.Repeat("y", 40))
	if over.WithinBudget {
		t.Fatalf("expected overflow: %+v", over)
	}
	if over.UsageRatio <= 1 {
		t.Fatalf("UsageRatio = %f, want > 1 on overflow", over.UsageRatio)
	}
}
