package diagnosis

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/varenko/inquest/internal/signature"
)

// MaxConfidence caps a pattern's summed hit weights.
const MaxConfidence = 100

// evaluation is one pattern's outcome against a trace before ranking.
type evaluation struct {
	pattern    signature.Pattern
	confidence int // capped at MaxConfidence
	threshold  int // effective threshold, resolved during ranking
	hits       []signature.Hit
}

// evaluate runs every registered pattern against the input. Patterns have
// no ordering dependency, so they fan out across goroutines and land in an
// index-addressed slice: no shared writes, and the result order is the
// registry order regardless of scheduling.
func evaluate(ctx context.Context, registry *signature.Registry, in signature.Input) []evaluation {
	patterns := registry.Patterns()
	results := make([]evaluation, len(patterns))

	g, _ := errgroup.WithContext(ctx)
	for i, p := range patterns {
		g.Go(func() error {
			results[i] = evaluateOne(p, in)
			return nil
		})
	}
	// Predicates report "no hit" instead of failing, so the group never
	// carries an error.
	_ = g.Wait()

	return results
}

// evaluateOne folds the pattern's predicates over the input: sum the
// weights of the ones that fire, cap the sum.
func evaluateOne(p signature.Pattern, in signature.Input) evaluation {
	ev := evaluation{pattern: p}
	for _, wp := range p.Predicates {
		detail, ok := wp.Predicate.Check(in)
		if !ok {
			continue
		}
		ev.hits = append(ev.hits, signature.Hit{
			Predicate: wp.Predicate.Name,
			Weight:    wp.Weight,
			Detail:    detail,
		})
		ev.confidence += wp.Weight
	}
	if ev.confidence > MaxConfidence {
		ev.confidence = MaxConfidence
	}
	return ev
}
