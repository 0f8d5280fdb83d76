package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"sp1500_float/pkg/core/ingest"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// tickerSymbols returns the normalized, de-duplicated symbols of cs, at most
// limit of them when limit > 0.
func tickerSymbols(cs []ingest.Constituent, limit int) []string {
	seen := make(map[string]bool, len(cs))
	var out []string
	for _, c := range cs {
		t := ingest.NormalizeTicker(c.Symbol)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// normalizeTickers upper-cases args and splits comma-separated lists.
func normalizeTickers(args []string) []string {
	var out []string
	for _, a := range args {
		for _, t := range strings.Split(a, ",") {
			if t = ingest.NormalizeTicker(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
