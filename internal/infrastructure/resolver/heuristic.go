// Package resolver adapts the external natural-language-to-command
// collaborator. The engine only ever sees ports.IntentResolver; this
// offline heuristic keeps the pipeline usable without any AI backend.
package resolver

import (
	"context"
	"strings"

	"github.com/doeshing/safecmd/internal/ports"
)

// Heuristic is a local keyword-based resolver.
type Heuristic struct{}

// NewHeuristic builds the offline resolver.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Resolve implements ports.IntentResolver.
func (h *Heuristic) Resolve(_ context.Context, prompt string) (string, string, error) {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "list") && strings.Contains(lower, "file"):
		return "ls -la", "List directory contents (read-only)", nil
	case strings.Contains(lower, "disk") && (strings.Contains(lower, "space") || strings.Contains(lower, "usage")):
		return "df -h", "Show free disk space (read-only)", nil
	case strings.Contains(lower, "process"):
		return "ps aux", "List running processes (read-only)", nil
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove"):
		return "", "", ErrNeedsExplicitCommand
	default:
		return "", "", ErrNeedsExplicitCommand
	}
}

var _ ports.IntentResolver = (*Heuristic)(nil)
