package diagnosis

import (
	"sort"

	"github.com/varenko/inquest/internal/signature"
)

// rank splits evaluations into matches and a full score sheet. Matches are
// ordered by confidence descending; exact ties go to the pattern with the
// higher registry priority. An empty match list is a valid outcome, not an
// error: the assembler turns it into an unclassified result.
func rank(registry *signature.Registry, evals []evaluation) (matches []evaluation, scores []Score) {
	scores = make([]Score, 0, len(evals))
	for _, ev := range evals {
		ev.threshold = registry.Threshold(ev.pattern)
		matched := ev.confidence >= ev.threshold
		scores = append(scores, Score{
			Pattern:    ev.pattern.ID,
			Confidence: ev.confidence,
			Threshold:  ev.threshold,
			Matched:    matched,
		})
		if matched {
			matches = append(matches, ev)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].confidence != matches[j].confidence {
			return matches[i].confidence > matches[j].confidence
		}
		return registry.Priority(matches[i].pattern.ID) < registry.Priority(matches[j].pattern.ID)
	})
	return matches, scores
}
