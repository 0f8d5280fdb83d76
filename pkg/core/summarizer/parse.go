package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// SmartParse decodes a model response into out, trying progressively more
// lenient strategies:
//
//  1. standard JSON (after stripping a surrounding code fence)
//  2. json-repair (unquoted keys, single quotes, trailing commas, truncation)
//  3. Hjson (comments, unquoted strings, optional commas)
func SmartParse(input string, out any) error {
	cleaned := stripCodeFence(input)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	// Repair would happily turn prose into a JSON string.
	if !strings.ContainsAny(cleaned, "{[") {
		return fmt.Errorf("response contains no JSON: %q", preview(input))
	}

	if repaired, err := jsonrepair.RepairJSON(cleaned); err == nil {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		}
	}

	var loose any
	if err := hjson.Unmarshal([]byte(cleaned), &loose); err == nil {
		if normalized, err := json.Marshal(loose); err == nil {
			if err := json.Unmarshal(normalized, out); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("response is not parseable JSON: %q", preview(input))
}

// stripCodeFence removes an outer ``` or ```json block.
func stripCodeFence(input string) string {
	cleaned := strings.TrimSpace(input)
	if !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") || len(cleaned) < 6 {
		return cleaned
	}
	cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "{[") {
		cleaned = cleaned[nl+1:]
	}
	return strings.TrimSpace(cleaned)
}

func preview(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
