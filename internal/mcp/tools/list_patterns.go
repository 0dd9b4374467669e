package tools

import (
	"context"
	"encoding/json"

	"github.com/varenko/inquest/internal/signature"
)

// ListPatternsTool implements the list_patterns MCP tool.
type ListPatternsTool struct {
	registry *signature.Registry
}

// NewListPatternsTool creates a new list_patterns tool.
func NewListPatternsTool(registry *signature.Registry) *ListPatternsTool {
	return &ListPatternsTool{registry: registry}
}

// PatternDescriptor describes one registered failure signature.
type PatternDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Summary     string `json:"summary"`
	Remediation string `json:"remediation"`
	Threshold   int    `json:"threshold"`
	Priority    int    `json:"priority"`
}

// ListPatternsOutput is the result returned to the MCP client.
type ListPatternsOutput struct {
	Patterns []PatternDescriptor `json:"patterns"`
}

// Execute lists the registered signatures in registry order.
func (t *ListPatternsTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	patterns := t.registry.Patterns()

	out := ListPatternsOutput{Patterns: make([]PatternDescriptor, 0, len(patterns))}
	for _, p := range patterns {
		out.Patterns = append(out.Patterns, PatternDescriptor{
			ID:          string(p.ID),
			Name:        p.Name,
			Summary:     p.Summary,
			Remediation: string(p.Remediation),
			Threshold:   t.registry.Threshold(p),
			Priority:    t.registry.Priority(p.ID),
		})
	}
	return out, nil
}
