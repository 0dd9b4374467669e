package signature

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/varenko/inquest/internal/trace"
)

// MessageSignature reports a hit when the lowercased failure message matches
// the given expression. The expression is compiled once at catalog build
// time and must be written in lowercase.
func MessageSignature(expr string) Predicate {
	re := regexp.MustCompile(expr)
	return Predicate{
		Name: "message-signature",
		Check: func(in Input) (string, bool) {
			_, f, ok := failure(in)
			if !ok || f.Message == "" {
				return "", false
			}
			m := re.FindString(strings.ToLower(f.Message))
			if m == "" {
				return "", false
			}
			return fmt.Sprintf("failure message contains %q", m), true
		},
	}
}

// StatusCode reports a hit when the failure code equals one of the given
// codes. Comparison ignores case so "etimedout" and "ETIMEDOUT" agree.
func StatusCode(codes ...string) Predicate {
	return Predicate{
		Name: "status-code",
		Check: func(in Input) (string, bool) {
			_, f, ok := failure(in)
			if !ok || f.Code == "" {
				return "", false
			}
			for _, code := range codes {
				if strings.EqualFold(f.Code, code) {
					return fmt.Sprintf("failure code %q matches [%s]", f.Code, strings.Join(codes, ", ")), true
				}
			}
			return "", false
		},
	}
}

// ExpressionRecorded reports a hit when the failure carries the expression
// that was under evaluation when the node failed.
func ExpressionRecorded() Predicate {
	return Predicate{
		Name: "expression-recorded",
		Check: func(in Input) (string, bool) {
			_, f, ok := failure(in)
			if !ok || f.FailingExpression == "" {
				return "", false
			}
			return fmt.Sprintf("failing expression %q was captured", f.FailingExpression), true
		},
	}
}

// SampleFieldInconsistency reports a hit when a field referenced by the
// failing expression is sporadically absent across an upstream node's
// sampled output: present in at least one record and missing from at least
// one other. Uniform absence does not fire; a field missing from every
// record says nothing about which record broke the run.
//
// Its origin qualifier asks the same question of a single candidate node,
// which is how the tracer pins the defect on the node that emitted the
// inconsistent records.
func SampleFieldInconsistency() Predicate {
	return Predicate{
		Name: "sample-inconsistency",
		Check: func(in Input) (string, bool) {
			node, f, ok := failure(in)
			if !ok {
				return "", false
			}
			probes := compileProbes(extractFieldPaths(f.FailingExpression))
			if len(probes) == 0 {
				return "", false
			}
			for i := in.Trace.IndexOf(node.Name) - 1; i >= 0; i-- {
				if detail, hit := sampleInconsistencyAt(in, probes, i); hit {
					return detail, true
				}
			}
			return "", false
		},
		QualifyOrigin: func(in Input, candidate int) (string, bool) {
			_, f, ok := failure(in)
			if !ok {
				return "", false
			}
			probes := compileProbes(extractFieldPaths(f.FailingExpression))
			if len(probes) == 0 {
				return "", false
			}
			return sampleInconsistencyAt(in, probes, candidate)
		},
	}
}

func sampleInconsistencyAt(in Input, probes []fieldProbe, idx int) (string, bool) {
	node := in.Trace.NodeAt(idx)
	if node == nil {
		return "", false
	}
	params := in.Params.Normalize()
	sample := in.Trace.Sample(node.Name, params.SampleLimit)
	if len(sample) < params.MinSampleSize {
		return "", false
	}
	for _, probe := range probes {
		present := 0
		for _, record := range sample {
			if _, ok := probe.resolve(record); ok {
				present++
			}
		}
		if present > 0 && present < len(sample) {
			return fmt.Sprintf("field %q is present in %d of %d sampled records from node %q",
				probe.path, present, len(sample), node.Name), true
		}
	}
	return "", false
}

// SampleTypeDivergence reports a hit when a field referenced by the failing
// expression carries different JSON types across an upstream node's sampled
// output, e.g. a number in one record and a string in the next. Its origin
// qualifier probes a single candidate node the same way.
func SampleTypeDivergence() Predicate {
	return Predicate{
		Name: "sample-type-divergence",
		Check: func(in Input) (string, bool) {
			node, f, ok := failure(in)
			if !ok {
				return "", false
			}
			probes := compileProbes(extractFieldPaths(f.FailingExpression))
			if len(probes) == 0 {
				return "", false
			}
			for i := in.Trace.IndexOf(node.Name) - 1; i >= 0; i-- {
				if detail, hit := sampleTypeDivergenceAt(in, probes, i); hit {
					return detail, true
				}
			}
			return "", false
		},
		QualifyOrigin: func(in Input, candidate int) (string, bool) {
			_, f, ok := failure(in)
			if !ok {
				return "", false
			}
			probes := compileProbes(extractFieldPaths(f.FailingExpression))
			if len(probes) == 0 {
				return "", false
			}
			return sampleTypeDivergenceAt(in, probes, candidate)
		},
	}
}

func sampleTypeDivergenceAt(in Input, probes []fieldProbe, idx int) (string, bool) {
	node := in.Trace.NodeAt(idx)
	if node == nil {
		return "", false
	}
	params := in.Params.Normalize()
	sample := in.Trace.Sample(node.Name, params.SampleLimit)
	if len(sample) < params.MinSampleSize {
		return "", false
	}
	for _, probe := range probes {
		seen := make(map[string]struct{})
		var types []string
		for _, record := range sample {
			v, ok := probe.resolve(record)
			if !ok {
				continue
			}
			name := jsonTypeName(v)
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			types = append(types, name)
		}
		if len(types) >= 2 {
			return fmt.Sprintf("field %q switches type across sampled records from node %q (%s)",
				probe.path, node.Name, strings.Join(types, " vs ")), true
		}
	}
	return "", false
}

// PrecedingProducer reports a hit when the failing node and the node
// immediately before it share one of the given type tags and the preceding
// node succeeded. It captures the producer/consumer shape where one node
// prepares an artifact and the next one fails to find it.
//
// Its origin qualifier accepts any successful upstream node carrying a
// producer tag, so the tracer attributes the defect to the nearest one.
func PrecedingProducer(tags ...string) Predicate {
	tagged := func(tag string) bool {
		for _, t := range tags {
			if strings.EqualFold(tag, t) {
				return true
			}
		}
		return false
	}
	return Predicate{
		Name: "preceding-producer",
		Check: func(in Input) (string, bool) {
			node, _, ok := failure(in)
			if !ok || !tagged(node.TypeTag) {
				return "", false
			}
			prev := in.Trace.NodeAt(in.Trace.IndexOf(node.Name) - 1)
			if prev == nil || prev.Status != trace.NodeSuccess || !tagged(prev.TypeTag) {
				return "", false
			}
			return fmt.Sprintf("node %q (%s) completed successfully immediately before failing node %q",
				prev.Name, prev.TypeTag, node.Name), true
		},
		QualifyOrigin: func(in Input, candidate int) (string, bool) {
			cand := in.Trace.NodeAt(candidate)
			if cand == nil || cand.Status != trace.NodeSuccess || !tagged(cand.TypeTag) {
				return "", false
			}
			return fmt.Sprintf("node %q (%s) produced its artifact upstream of the failure",
				cand.Name, cand.TypeTag), true
		},
	}
}

// TimingProximity reports a hit when the failing node's recorded run time
// reached the configured proximity fraction of its own timeout ceiling. The
// ceiling is read from the first of the given node config keys that holds a
// positive number, interpreted as milliseconds.
func TimingProximity(configKeys ...string) Predicate {
	return Predicate{
		Name: "timing-proximity",
		Check: func(in Input) (string, bool) {
			node, _, ok := failure(in)
			if !ok || node.ExecTimeMs <= 0 {
				return "", false
			}
			ceiling := timeoutCeilingMs(node.Config, configKeys)
			if ceiling <= 0 {
				return "", false
			}
			params := in.Params.Normalize()
			if float64(node.ExecTimeMs) < params.TimeoutProximity*float64(ceiling) {
				return "", false
			}
			return fmt.Sprintf("node %q ran %dms against its %dms ceiling", node.Name, node.ExecTimeMs, ceiling), true
		},
	}
}

// timeoutCeilingMs resolves the node's timeout ceiling from its recorded
// config. The first key present wins.
func timeoutCeilingMs(config map[string]interface{}, keys []string) int64 {
	for _, key := range keys {
		raw, ok := config[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return int64(v)
		case int:
			return int64(v)
		case int64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return int64(f)
			}
		}
		return 0
	}
	return 0
}

// RecentSuccess reports a hit when the most recent prior execution of the
// same workflow finished successfully. A run that worked minutes ago and
// fails now points at an expiring external prerequisite rather than a
// workflow defect.
func RecentSuccess() Predicate {
	return Predicate{
		Name: "recent-success",
		Check: func(in Input) (string, bool) {
			_, _, ok := failure(in)
			if !ok {
				return "", false
			}
			var latest *trace.ExecutionSummary
			for i := range in.History {
				h := &in.History[i]
				if h.ExecutionID == in.Trace.ExecutionID || h.StoppedAt.IsZero() {
					continue
				}
				if !in.Trace.StartedAt.IsZero() && h.StoppedAt.After(in.Trace.StartedAt) {
					continue
				}
				if latest == nil || h.StoppedAt.After(latest.StoppedAt) {
					latest = h
				}
			}
			if latest == nil || latest.Status != trace.ExecutionSuccess {
				return "", false
			}
			return fmt.Sprintf("previous run %q of this workflow succeeded at %s",
				latest.ExecutionID, latest.StoppedAt.UTC().Format(time.RFC3339)), true
		},
	}
}

// ExpressionOperators reports a hit when the failing expression applies
// arithmetic or comparison operators to its operands, the shape where a
// malformed operand type surfaces. The minus sign is deliberately not
// matched: kebab-case field names would false-positive.
func ExpressionOperators() Predicate {
	return Predicate{
		Name: "expression-operators",
		Check: func(in Input) (string, bool) {
			_, f, ok := failure(in)
			if !ok {
				return "", false
			}
			expr := normalizeExpression(f.FailingExpression)
			if expr == "" || !strings.ContainsAny(expr, "+*/%<>=!") {
				return "", false
			}
			return fmt.Sprintf("failing expression %q applies operators to sampled fields", f.FailingExpression), true
		},
	}
}
