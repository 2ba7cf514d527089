// Package merger implements the deterministic multi-worker result combiner
// (spec §4.H): a fixed markdown template with one section per worker, in
// input id order.
package merger

import (
	"fmt"
	"strings"
)

// Merge combines per-worker result texts into a single markdown block.
// Section order follows ids, not map iteration order, so the result is
// stable regardless of fan-out completion order.
func Merge(query string, ids []string, results map[string]string) string {
	var b strings.Builder
	b.WriteString("# Multi-Source Financial Analysis\n\n")
	b.WriteString(fmt.Sprintf("Query: %s\n", query))

	for _, id := range ids {
		b.WriteString(fmt.Sprintf("\n## %s\n\n", titleCase(id)))
		b.WriteString(results[id])
		b.WriteString("\n\n---\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// titleCase renders a worker id as a human-facing section title, e.g.
// "risk-pnl-agent" -> "Risk Pnl Agent".
func titleCase(id string) string {
	words := strings.Split(id, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
