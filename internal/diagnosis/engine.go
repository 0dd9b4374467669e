package diagnosis

import (
	"context"

	"github.com/varenko/inquest/internal/logging"
	"github.com/varenko/inquest/internal/signature"
	"github.com/varenko/inquest/internal/trace"
)

// Options configures an Engine. Zero values select the built-in catalog,
// default parameters, the default combination table, and no cache.
type Options struct {
	Registry     *signature.Registry
	Params       signature.Params
	Combinations []CombinationRule
	Cache        *Cache
}

// Engine diagnoses failed workflow executions against a signature catalog.
// It is immutable after construction and safe for concurrent use: every
// diagnosis is a pure function of the trace, the history, and the engine's
// configuration.
type Engine struct {
	registry *signature.Registry
	params   signature.Params
	rules    []CombinationRule
	cache    *Cache
	logger   *logging.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	registry := opts.Registry
	if registry == nil {
		registry = signature.Default()
	}
	rules := opts.Combinations
	if rules == nil {
		rules = DefaultCombinations()
	}
	return &Engine{
		registry: registry,
		params:   opts.Params.Normalize(),
		rules:    rules,
		cache:    opts.Cache,
		logger:   logging.GetLogger("diagnosis.engine"),
	}
}

// Registry exposes the engine's pattern catalog for listings.
func (e *Engine) Registry() *signature.Registry {
	return e.registry
}

// Params exposes the engine's normalized evaluation parameters.
func (e *Engine) Params() signature.Params {
	return e.params
}

// CacheStats reports cache statistics, or ok=false when caching is off.
func (e *Engine) CacheStats() (CacheStats, bool) {
	if e.cache == nil {
		return CacheStats{}, false
	}
	return e.cache.Stats(), true
}

// Diagnose analyzes one failed execution. Traces that did not fail are
// rejected: there is nothing to diagnose. The returned Diagnosis is shared
// with the cache and must be treated as read-only.
func (e *Engine) Diagnose(ctx context.Context, tr *trace.ExecutionTrace, history []trace.ExecutionSummary) (*Diagnosis, error) {
	if tr == nil {
		return nil, trace.NewMalformedTraceError("no execution trace provided")
	}
	if tr.Status != trace.ExecutionError || tr.Failure == nil {
		return nil, trace.NewMalformedTraceError("execution %s did not fail; there is nothing to diagnose", tr.ExecutionID)
	}
	failIdx := tr.IndexOf(tr.Failure.NodeName)
	failing := tr.NodeAt(failIdx)
	if failing == nil {
		return nil, trace.NewMalformedTraceError("execution %s failure references node %q which is not in the path",
			tr.ExecutionID, tr.Failure.NodeName)
	}

	var key string
	if e.cache != nil {
		key = Key(tr, history)
		if d, ok := e.cache.Get(key); ok {
			e.logger.Debug("diagnosis cache hit: execution=%s", tr.ExecutionID)
			return d, nil
		}
	}

	in := signature.Input{Trace: tr, History: history, Params: e.params}
	evals := evaluate(ctx, e.registry, in)
	matches, scores := rank(e.registry, evals)

	var winner *evaluation
	if len(matches) > 0 {
		winner = &matches[0]
	}
	origin := traceOrigin(in, failing, failIdx, winner)
	d := assemble(in, matches, scores, origin, e.rules)

	if e.cache != nil {
		e.cache.Put(key, d)
	}

	if d.Unclassified {
		e.logger.Info("no pattern reached threshold: execution=%s, origin=%s", tr.ExecutionID, d.Origin.NodeName)
	} else {
		primary := d.Primary()
		e.logger.Info("diagnosis complete: execution=%s, primary=%s, confidence=%d, origin=%s",
			tr.ExecutionID, primary.Pattern, primary.Confidence, d.Origin.NodeName)
	}
	return d, nil
}
