package payload

import (
	"encoding/json"
	"strings"
)

// Extracted is the result of pulling a structured block out of mixed
// prose+data generator output.
type Extracted struct {
	// Block is the authoritative structured block, nil when none was found.
	Block json.RawMessage
	// Prose is the narrative text outside the structured block. It is the
	// user-visible response and must never be reinterpreted as data.
	Prose string
	Found bool
}

// Extract pulls the structured payload out of raw generator output.
//
// Extraction order: fenced code blocks are tried first; when several parse
// as JSON the last one is authoritative, since a generator self-correcting
// mid-output emits its revision after the original. Failing that, the whole
// output is tried as a JSON document. Otherwise the output is all prose.
func Extract(raw string) Extracted {
	blocks, prose := splitFences(raw)

	var last json.RawMessage
	for _, block := range blocks {
		candidate := strings.TrimSpace(block)
		if candidate == "" {
			continue
		}
		if json.Valid([]byte(candidate)) {
			last = json.RawMessage(candidate)
		}
	}
	if last != nil {
		return Extracted{Block: last, Prose: strings.TrimSpace(prose), Found: true}
	}

	whole := strings.TrimSpace(raw)
	if strings.HasPrefix(whole, "{") && json.Valid([]byte(whole)) {
		return Extracted{Block: json.RawMessage(whole), Found: true}
	}

	return Extracted{Prose: strings.TrimSpace(raw)}
}

// splitFences separates fenced code block bodies from surrounding prose.
// An unterminated fence is treated as running to the end of the output.
func splitFences(raw string) (blocks []string, prose string) {
	var outside strings.Builder
	rest := raw
	for {
		start := strings.Index(rest, "```")
		if start == -1 {
			outside.WriteString(rest)
			return blocks, outside.String()
		}
		outside.WriteString(rest[:start])
		rest = rest[start+3:]

		// Skip the info string (e.g. "json") up to the first newline.
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:]
		} else {
			rest = ""
		}

		end := strings.Index(rest, "```")
		if end == -1 {
			blocks = append(blocks, rest)
			return blocks, outside.String()
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+3:]
	}
}
