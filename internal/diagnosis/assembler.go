package diagnosis

import (
	"github.com/varenko/inquest/internal/signature"
)

// CombinationRule marks one pattern as a downstream consequence of another.
// When both match the same trace, the cause becomes primary regardless of
// raw confidence order and the consequence is annotated instead of standing
// as an independent top finding.
type CombinationRule struct {
	Cause       signature.PatternID `json:"cause"`
	Consequence signature.PatternID `json:"consequence"`
	Annotation  string              `json:"annotation,omitempty"` // empty selects DefaultCombinationNote
}

// DefaultCombinationNote annotates a consequence finding.
const DefaultCombinationNote = "expected to resolve once the primary finding is fixed"

// DefaultCombinations returns the built-in adjacency table. Rate limiting
// routinely drags calls out long enough to trip timeout evidence, so a
// timeout finding next to a rate-limiting finding is treated as fallout.
func DefaultCombinations() []CombinationRule {
	return []CombinationRule{
		{Cause: signature.PatternRateLimiting, Consequence: signature.PatternTimeout},
	}
}

// assemble builds the final Diagnosis from the ranked matches, the full
// score sheet, and the traced origin. No matches means an unclassified
// result that still carries the raw failure data.
func assemble(in signature.Input, matches []evaluation, scores []Score, origin Origin, rules []CombinationRule) *Diagnosis {
	d := &Diagnosis{
		ExecutionID: in.Trace.ExecutionID,
		WorkflowID:  in.Trace.WorkflowID,
		Fingerprint: in.Trace.Fingerprint(),
		Findings:    []Finding{},
		Scores:      scores,
		Origin:      origin,
		Failure:     in.Trace.Failure,
	}
	if len(matches) == 0 {
		d.Unclassified = true
		return d
	}

	findings := make([]Finding, 0, len(matches))
	for _, m := range matches {
		findings = append(findings, Finding{
			Pattern:     m.pattern.ID,
			Name:        m.pattern.Name,
			Summary:     m.pattern.Summary,
			Remediation: m.pattern.Remediation,
			Confidence:  m.confidence,
			Threshold:   m.threshold,
			Hits:        m.hits,
		})
	}
	d.Findings = applyCombinations(findings, rules)
	return d
}

// applyCombinations walks the adjacency table in declared order. For each
// rule whose cause and consequence both matched, the consequence is
// annotated and the cause moves to the front; the relative order of the
// remaining findings is preserved.
func applyCombinations(findings []Finding, rules []CombinationRule) []Finding {
	for _, rule := range rules {
		causeIdx := findingIndex(findings, rule.Cause)
		consequenceIdx := findingIndex(findings, rule.Consequence)
		if causeIdx < 0 || consequenceIdx < 0 {
			continue
		}

		note := rule.Annotation
		if note == "" {
			note = DefaultCombinationNote
		}
		findings[consequenceIdx].Annotation = note

		if causeIdx > 0 {
			cause := findings[causeIdx]
			copy(findings[1:causeIdx+1], findings[0:causeIdx])
			findings[0] = cause
		}
	}
	return findings
}

func findingIndex(findings []Finding, id signature.PatternID) int {
	for i := range findings {
		if findings[i].Pattern == id {
			return i
		}
	}
	return -1
}
