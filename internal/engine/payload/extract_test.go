package payload

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractFencedBlock(t *testing.T) {
	raw := "The guards shift uneasily in the torchlight.\n" +
		"```json\n{\"summary\": \"tension rises\"}\n```\n" +
		"What do you do?"

	got := Extract(raw)
	if !got.Found {
		t.Fatal("expected a structured block")
	}

	var decoded map[string]string
	if err := json.Unmarshal(got.Block, &decoded); err != nil {
		t.Fatalf("unmarshal block: %v", err)
	}
	if decoded["summary"] != "tension rises" {
		t.Fatalf("summary = %q, want %q", decoded["summary"], "tension rises")
	}
	if !strings.Contains(got.Prose, "torchlight") || !strings.Contains(got.Prose, "What do you do?") {
		t.Fatalf("prose lost surrounding narration: %q", got.Prose)
	}
	if strings.Contains(got.Prose, "summary") {
		t.Fatalf("prose contains structured data: %q", got.Prose)
	}
}

func TestExtractLastBlockWins(t *testing.T) {
	raw := "First attempt:\n" +
		"```json\n{\"summary\": \"draft\"}\n```\n" +
		"Correction:\n" +
		"```json\n{\"summary\": \"final\"}\n```\n"

	got := Extract(raw)
	if !got.Found {
		t.Fatal("expected a structured block")
	}
	var decoded map[string]string
	if err := json.Unmarshal(got.Block, &decoded); err != nil {
		t.Fatalf("unmarshal block: %v", err)
	}
	if decoded["summary"] != "final" {
		t.Fatalf("summary = %q, want the last block", decoded["summary"])
	}
}

func TestExtractSkipsInvalidFencedJSON(t *testing.T) {
	raw := "```json\n{not json}\n```\n" +
		"```json\n{\"summary\": \"good\"}\n```"

	got := Extract(raw)
	if !got.Found {
		t.Fatal("expected the valid block to be found")
	}
	var decoded map[string]string
	if err := json.Unmarshal(got.Block, &decoded); err != nil {
		t.Fatalf("unmarshal block: %v", err)
	}
	if decoded["summary"] != "good" {
		t.Fatalf("summary = %q, want %q", decoded["summary"], "good")
	}
}

func TestExtractWholeOutputAsJSON(t *testing.T) {
	raw := `{"intent": "gameplay", "confidence": "high"}`

	got := Extract(raw)
	if !got.Found {
		t.Fatal("expected whole output to parse as the payload")
	}
	if got.Prose != "" {
		t.Fatalf("prose = %q, want empty for pure JSON output", got.Prose)
	}
}

func TestExtractNoStructuredBlock(t *testing.T) {
	raw := "You slip past the guards without a sound."

	got := Extract(raw)
	if got.Found {
		t.Fatal("expected no structured block")
	}
	if got.Prose != raw {
		t.Fatalf("prose = %q, want original text", got.Prose)
	}
}

func TestExtractUnterminatedFence(t *testing.T) {
	raw := "Narration.\n```json\n{\"summary\": \"cut off\"}"

	got := Extract(raw)
	if !got.Found {
		t.Fatal("expected unterminated fence body to be considered")
	}
	var decoded map[string]string
	if err := json.Unmarshal(got.Block, &decoded); err != nil {
		t.Fatalf("unmarshal block: %v", err)
	}
	if decoded["summary"] != "cut off" {
		t.Fatalf("summary = %q, want %q", decoded["summary"], "cut off")
	}
}
