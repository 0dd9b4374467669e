package signature

import (
	"github.com/varenko/inquest/internal/trace"
)

// PatternID names one diagnosable failure family in the catalog.
type PatternID string

// Built-in pattern identifiers, listed in descending tie-break priority.
// Earlier entries have narrower signatures and win exact confidence ties.
const (
	PatternSessionVisibility   PatternID = "session-visibility"
	PatternAuthorizationExpiry PatternID = "authorization-expiry"
	PatternRateLimiting        PatternID = "rate-limiting"
	PatternTimeout             PatternID = "timeout"
	PatternExpressionReference PatternID = "expression-reference"
	PatternTypeMismatch        PatternID = "type-mismatch"
)

// RemediationClass groups patterns by the kind of fix that resolves them.
// The report renderer keys its guidance text on this value.
type RemediationClass string

const (
	RemediationSingleSession  RemediationClass = "single-session-execution"
	RemediationGuardFields    RemediationClass = "guard-missing-fields"
	RemediationThrottle       RemediationClass = "throttle-requests"
	RemediationRefreshAuth    RemediationClass = "refresh-credentials"
	RemediationRaiseTimeout   RemediationClass = "raise-timeout-ceiling"
	RemediationNormalizeTypes RemediationClass = "normalize-field-types"
)

// Params tunes predicate evaluation. Zero values select the package defaults.
type Params struct {
	SampleLimit      int     `json:"sampleLimit"`      // max output records examined per node
	MinSampleSize    int     `json:"minSampleSize"`    // records required before sample predicates may fire
	TimeoutProximity float64 `json:"timeoutProximity"` // fraction of the configured ceiling treated as near-timeout
}

// Evaluation defaults. MinSampleSize below 2 cannot distinguish sporadic
// absence from uniform absence, so 2 is the floor as well as the default.
const (
	DefaultMinSampleSize    = 2
	DefaultTimeoutProximity = 0.95
)

// Normalize returns a copy with zero values replaced by defaults.
func (p Params) Normalize() Params {
	if p.SampleLimit < 1 {
		p.SampleLimit = trace.DefaultSampleLimit
	}
	if p.MinSampleSize < DefaultMinSampleSize {
		p.MinSampleSize = DefaultMinSampleSize
	}
	if p.TimeoutProximity <= 0 || p.TimeoutProximity > 1 {
		p.TimeoutProximity = DefaultTimeoutProximity
	}
	return p
}

// Input carries everything a predicate may inspect: the trace under
// diagnosis, prior executions of the same workflow, and the evaluation
// parameters. Predicates treat all of it as read-only.
type Input struct {
	Trace   *trace.ExecutionTrace
	History []trace.ExecutionSummary
	Params  Params
}

// Hit records one satisfied predicate and the weight it contributes to a
// pattern's confidence.
type Hit struct {
	Predicate string `json:"predicate"` // predicate name, e.g. "status-code"
	Weight    int    `json:"weight"`    // contribution before the confidence cap
	Detail    string `json:"detail"`    // human-readable account of what matched
}

// Predicate is a single evidence check. Check inspects the trace and
// reports whether the evidence is present, with a short account of what it
// saw. A predicate that cannot evaluate (missing failure, sparse samples)
// reports no hit rather than an error.
//
// QualifyOrigin, when non-nil, probes one upstream node on behalf of the
// root-cause tracer: does this node's recorded output explain the defect?
// Predicates whose evidence is local to the failing node leave it nil.
type Predicate struct {
	Name          string
	Check         func(in Input) (detail string, ok bool)
	QualifyOrigin func(in Input, candidate int) (detail string, ok bool)
}

// WeightedPredicate binds a predicate to the confidence weight it
// contributes when satisfied.
type WeightedPredicate struct {
	Predicate Predicate
	Weight    int
}

// Pattern is one entry of the signature catalog: a named, weighted set of
// evidence checks describing a single failure family. Patterns are plain
// data; adding a family means registering another value, not writing new
// branching logic.
type Pattern struct {
	ID          PatternID        `json:"id"`
	Name        string           `json:"name"`        // display name for reports
	Summary     string           `json:"summary"`     // one-line account of the failure family
	Remediation RemediationClass `json:"remediation"` // fix class rendered by reports

	// MatchThreshold overrides the registry default when > 0.
	MatchThreshold int `json:"matchThreshold,omitempty"`

	Predicates []WeightedPredicate `json:"-"`
}

// MaxWeight sums the pattern's predicate weights without the 100 cap.
func (p Pattern) MaxWeight() int {
	total := 0
	for _, wp := range p.Predicates {
		total += wp.Weight
	}
	return total
}

// failure returns the failing node and failure event, or ok=false when the
// trace recorded no failure. Every predicate guards on this so evaluation
// of a successful trace is a uniform no-hit, never a panic.
func failure(in Input) (*trace.NodeRun, *trace.FailureEvent, bool) {
	if in.Trace == nil || in.Trace.Failure == nil {
		return nil, nil, false
	}
	node := in.Trace.FailingNode()
	if node == nil {
		return nil, nil, false
	}
	return node, in.Trace.Failure, true
}
