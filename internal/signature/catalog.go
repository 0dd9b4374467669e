package signature

import "fmt"

// DefaultMatchThreshold is the confidence a pattern must reach to count as
// a match unless the pattern or the runtime configuration overrides it.
const DefaultMatchThreshold = 70

// Catalog returns the built-in failure families in tie-break priority
// order. Weights reflect how specific each evidence kind is for its
// family: a 429 status pins rate limiting nearly by itself, while a
// near-ceiling run time only supports a timeout reading.
func Catalog() []Pattern {
	return []Pattern{
		{
			ID:          PatternSessionVisibility,
			Name:        "Session visibility",
			Summary:     "A file staged by one remote command is gone for the next because every node ran in its own session.",
			Remediation: RemediationSingleSession,
			Predicates: []WeightedPredicate{
				{Weight: 40, Predicate: MessageSignature(`no such file|file (does not|doesn't) exist|file not found|cannot find (the )?file|enoent`)},
				{Weight: 35, Predicate: PrecedingProducer("remote-shell", "ssh")},
				{Weight: 15, Predicate: StatusCode("ENOENT")},
			},
		},
		{
			ID:          PatternAuthorizationExpiry,
			Name:        "Authorization expiry",
			Summary:     "A credential that worked on recent runs stopped being accepted, pointing at an expired or revoked token.",
			Remediation: RemediationRefreshAuth,
			Predicates: []WeightedPredicate{
				{Weight: 50, Predicate: StatusCode("401", "403")},
				{Weight: 35, Predicate: MessageSignature(`unauthorized|forbidden|access denied|authentication (failed|required)|invalid (token|credentials?|api key)|(token|credentials?|api key) (has |is )?expired|expired (token|credentials?)`)},
				{Weight: 15, Predicate: RecentSuccess()},
			},
		},
		{
			ID:          PatternRateLimiting,
			Name:        "Rate limiting",
			Summary:     "The upstream service rejected the call because the workflow exceeded its request allowance.",
			Remediation: RemediationThrottle,
			Predicates: []WeightedPredicate{
				{Weight: 60, Predicate: StatusCode("429")},
				{Weight: 40, Predicate: MessageSignature(`rate limit|too many requests|quota exceeded|throttl`)},
			},
		},
		{
			ID:          PatternTimeout,
			Name:        "Timeout",
			Summary:     "The call ran up against its configured time ceiling and was cut off before completing.",
			Remediation: RemediationRaiseTimeout,
			Predicates: []WeightedPredicate{
				{Weight: 35, Predicate: StatusCode("408", "504", "ETIMEDOUT", "ESOCKETTIMEDOUT", "ECONNABORTED")},
				{Weight: 40, Predicate: MessageSignature(`timed?\s?out|deadline exceeded|etimedout|took too long`)},
				{Weight: 25, Predicate: TimingProximity("timeoutMs", "timeout", "requestTimeoutMs")},
			},
		},
		{
			ID:          PatternExpressionReference,
			Name:        "Expression reference",
			Summary:     "An expression dereferences a field that upstream data only sometimes provides.",
			Remediation: RemediationGuardFields,
			Predicates: []WeightedPredicate{
				{Weight: 40, Predicate: MessageSignature(`cannot read propert(y|ies)|undefined is not|is not defined|referenceerror|has no propert|of (undefined|null)\b`)},
				{Weight: 40, Predicate: SampleFieldInconsistency()},
				{Weight: 10, Predicate: ExpressionRecorded()},
			},
		},
		{
			ID:          PatternTypeMismatch,
			Name:        "Type mismatch",
			Summary:     "An expression received a value whose type changes between records, so an operation that worked once breaks on the next record.",
			Remediation: RemediationNormalizeTypes,
			Predicates: []WeightedPredicate{
				{Weight: 50, Predicate: MessageSignature(`expected .{1,60}(got|received|but was)|is not a (number|string|function)|not a valid (number|date)|cannot convert|invalid type|type mismatch|not assignable|returned nan|is nan`)},
				{Weight: 30, Predicate: SampleTypeDivergence()},
				{Weight: 20, Predicate: ExpressionOperators()},
			},
		},
	}
}

// Default returns a registry holding the built-in catalog with the default
// threshold. The catalog is static, so a validation failure here is a
// programming bug.
func Default() *Registry {
	r, err := NewRegistry(DefaultMatchThreshold, Catalog()...)
	if err != nil {
		panic(fmt.Sprintf("built-in signature catalog is invalid: %v", err))
	}
	return r
}
