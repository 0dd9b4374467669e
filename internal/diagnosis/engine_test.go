package diagnosis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varenko/inquest/internal/logging"
	"github.com/varenko/inquest/internal/signature"
	"github.com/varenko/inquest/internal/trace"
)

func buildTrace(t *testing.T, raw map[string]interface{}) *trace.ExecutionTrace {
	t.Helper()
	tr, err := trace.Build(raw, trace.BuildOptions{SampleLimit: 5})
	require.NoError(t, err)
	return tr
}

func node(name, typeTag, status string) map[string]interface{} {
	return map[string]interface{}{"name": name, "type": typeTag, "status": status}
}

func failedRaw(nodes []map[string]interface{}, failure map[string]interface{}) map[string]interface{} {
	path := make([]interface{}, len(nodes))
	for i, n := range nodes {
		path[i] = n
	}
	return map[string]interface{}{
		"id":         "exec-1",
		"workflowId": "wf-1",
		"status":     "error",
		"startedAt":  "2026-03-14T10:00:00Z",
		"stoppedAt":  "2026-03-14T10:00:12Z",
		"path":       path,
		"error":      failure,
	}
}

func scoreFor(t *testing.T, d *Diagnosis, id signature.PatternID) Score {
	t.Helper()
	for _, s := range d.Scores {
		if s.Pattern == id {
			return s
		}
	}
	t.Fatalf("no score recorded for pattern %s", id)
	return Score{}
}

func TestDiagnoseSessionVisibility(t *testing.T) {
	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{
			node("Webhook", "webhook-source", "success"),
			node("CleanInput", "transform", "success"),
			node("WriteFile", "remote-shell", "success"),
			node("ExecuteCommand", "remote-shell", "error"),
		},
		map[string]interface{}{
			"node":    "ExecuteCommand",
			"message": "bash: ./report.sh: file does not exist",
		},
	))

	d, err := New(Options{}).Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)

	require.False(t, d.Unclassified)
	require.Len(t, d.Findings, 1)
	primary := d.Primary()
	assert.Equal(t, signature.PatternSessionVisibility, primary.Pattern)
	assert.Equal(t, 75, primary.Confidence)
	assert.Equal(t, signature.RemediationSingleSession, primary.Remediation)

	assert.Equal(t, "WriteFile", d.Origin.NodeName, "the nearest qualifying producer is the origin, not the symptom node")
	assert.Equal(t, 2, d.Origin.Index)
	assert.Equal(t, "remote-shell", d.Origin.NodeType)
}

func TestDiagnoseExpressionReference(t *testing.T) {
	producer := node("Webhook", "webhook-source", "success")
	producer["output"] = []interface{}{
		map[string]interface{}{"body": map[string]interface{}{"email": "a@x.com"}},
		map[string]interface{}{"body": map[string]interface{}{}},
	}
	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{producer, node("SetEmail", "transform", "error")},
		map[string]interface{}{
			"node":       "SetEmail",
			"message":    "cannot read property email of undefined",
			"expression": "body.email",
		},
	))

	d, err := New(Options{}).Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)

	require.False(t, d.Unclassified)
	require.Len(t, d.Findings, 1)
	primary := d.Primary()
	assert.Equal(t, signature.PatternExpressionReference, primary.Pattern)
	assert.Equal(t, 90, primary.Confidence)

	assert.Equal(t, "Webhook", d.Origin.NodeName)
	assert.Equal(t, 0, d.Origin.Index)
	assert.Contains(t, d.Origin.Reason, `field "body.email"`)
}

func TestDiagnoseRateLimiting(t *testing.T) {
	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{
			node("FetchOrders", "http-call", "success"),
			node("NotifyBilling", "http-call", "error"),
		},
		map[string]interface{}{
			"node":    "NotifyBilling",
			"message": "request failed with status 429 Too Many Requests",
			"code":    float64(429),
		},
	))

	d, err := New(Options{}).Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)

	require.Len(t, d.Findings, 1)
	primary := d.Primary()
	assert.Equal(t, signature.PatternRateLimiting, primary.Pattern)
	assert.Equal(t, 100, primary.Confidence)

	assert.Equal(t, "NotifyBilling", d.Origin.NodeName, "no upstream candidate qualifies, the defect is local")
	assert.Equal(t, 1, d.Origin.Index)
	assert.Contains(t, d.Origin.Reason, "local to the failing node")
}

func TestDiagnoseUniformAbsenceIsUnclassified(t *testing.T) {
	producer := node("Webhook", "webhook-source", "success")
	producer["output"] = []interface{}{
		map[string]interface{}{"body": map[string]interface{}{}},
		map[string]interface{}{"body": map[string]interface{}{}},
	}
	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{producer, node("SetEmail", "transform", "error")},
		map[string]interface{}{
			"node":       "SetEmail",
			"message":    "cannot read property email of undefined",
			"expression": "body.email",
		},
	))

	d, err := New(Options{}).Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)

	assert.True(t, d.Unclassified)
	assert.Empty(t, d.Findings)
	require.NotNil(t, d.Failure, "an unclassified result still carries the raw failure data")
	assert.Equal(t, "SetEmail", d.Failure.NodeName)

	expr := scoreFor(t, d, signature.PatternExpressionReference)
	assert.Equal(t, 50, expr.Confidence, "uniform absence keeps the sample-inconsistency predicate quiet")
	assert.False(t, expr.Matched)

	assert.Equal(t, "SetEmail", d.Origin.NodeName, "every upstream node succeeded, so attribution stays local")
}

func TestDiagnoseMixedRateLimitAndTimeoutEvidence(t *testing.T) {
	failing := node("NotifyBilling", "http-call", "error")
	failing["execTimeMs"] = float64(9800)
	failing["config"] = map[string]interface{}{"timeoutMs": float64(10000)}
	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{node("FetchOrders", "http-call", "success"), failing},
		map[string]interface{}{
			"node":    "NotifyBilling",
			"message": "429 Too Many Requests - request timed out waiting for a rate limit token",
			"code":    float64(429),
		},
	))

	d, err := New(Options{}).Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)

	require.Len(t, d.Findings, 1, "timeout evidence stays below threshold and must not become a finding")
	primary := d.Primary()
	assert.Equal(t, signature.PatternRateLimiting, primary.Pattern)
	assert.Equal(t, 100, primary.Confidence)
	assert.Empty(t, primary.Annotation, "a single match is not a combined finding")

	timeout := scoreFor(t, d, signature.PatternTimeout)
	assert.Equal(t, 65, timeout.Confidence)
	assert.False(t, timeout.Matched)
}

func alwaysPattern(id signature.PatternID, weight int) signature.Pattern {
	return signature.Pattern{
		ID:          id,
		Name:        string(id),
		Summary:     "synthetic pattern for tests",
		Remediation: "test-fix",
		Predicates: []signature.WeightedPredicate{
			{Weight: weight, Predicate: signature.Predicate{
				Name:  "always",
				Check: func(signature.Input) (string, bool) { return "always fires", true },
			}},
		},
	}
}

func TestDiagnoseCombinationReordersCause(t *testing.T) {
	registry, err := signature.NewRegistry(70,
		alwaysPattern("downstream-effect", 90),
		alwaysPattern("true-cause", 80),
	)
	require.NoError(t, err)

	engine := New(Options{
		Registry: registry,
		Combinations: []CombinationRule{
			{Cause: "true-cause", Consequence: "downstream-effect"},
		},
	})

	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{node("Notify", "http-call", "error")},
		map[string]interface{}{"node": "Notify", "message": "boom"},
	))
	d, err := engine.Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)

	require.Len(t, d.Findings, 2)
	assert.Equal(t, signature.PatternID("true-cause"), d.Findings[0].Pattern,
		"the cause is primary even though the consequence scored higher")
	assert.Equal(t, signature.PatternID("downstream-effect"), d.Findings[1].Pattern)
	assert.Equal(t, DefaultCombinationNote, d.Findings[1].Annotation)
	assert.Empty(t, d.Findings[0].Annotation)
}

func TestDiagnoseRejectsNonFailedTraces(t *testing.T) {
	t.Run("nil trace", func(t *testing.T) {
		_, err := New(Options{}).Diagnose(context.Background(), nil, nil)
		require.Error(t, err)
		assert.True(t, trace.IsMalformedTraceError(err))
	})

	t.Run("successful execution", func(t *testing.T) {
		tr := buildTrace(t, map[string]interface{}{
			"id":     "exec-ok",
			"status": "success",
			"path":   []interface{}{node("Webhook", "webhook-source", "success")},
		})
		_, err := New(Options{}).Diagnose(context.Background(), tr, nil)
		require.Error(t, err)
		assert.True(t, trace.IsMalformedTraceError(err))
		assert.Contains(t, err.Error(), "nothing to diagnose")
	})
}

func TestDiagnoseIsDeterministic(t *testing.T) {
	producer := node("Webhook", "webhook-source", "success")
	producer["output"] = []interface{}{
		map[string]interface{}{"body": map[string]interface{}{"email": "a@x.com"}},
		map[string]interface{}{"body": map[string]interface{}{}},
	}
	raw := failedRaw(
		[]map[string]interface{}{producer, node("SetEmail", "transform", "error")},
		map[string]interface{}{
			"node":       "SetEmail",
			"message":    "cannot read property email of undefined",
			"expression": "body.email",
		},
	)
	history := []trace.ExecutionSummary{
		{ExecutionID: "exec-0", Status: trace.ExecutionSuccess, StoppedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
	}

	engine := New(Options{})
	first, err := engine.Diagnose(context.Background(), buildTrace(t, raw), history)
	require.NoError(t, err)
	second, err := engine.Diagnose(context.Background(), buildTrace(t, raw), history)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "identical inputs must produce byte-identical diagnoses")
}

func TestDiagnoseUsesHistory(t *testing.T) {
	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{node("PostInvoice", "http-call", "error")},
		map[string]interface{}{
			"node":    "PostInvoice",
			"message": "401 - Unauthorized: API key expired",
			"code":    float64(401),
		},
	))
	engine := New(Options{})

	bare, err := engine.Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)
	assert.Equal(t, 85, scoreFor(t, bare, signature.PatternAuthorizationExpiry).Confidence)

	history := []trace.ExecutionSummary{
		{ExecutionID: "exec-0", Status: trace.ExecutionSuccess, StoppedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
	}
	informed, err := engine.Diagnose(context.Background(), tr, history)
	require.NoError(t, err)
	assert.Equal(t, 100, scoreFor(t, informed, signature.PatternAuthorizationExpiry).Confidence,
		"a recent successful run strengthens the expiry reading")
}

func TestDiagnoseCachesByTraceAndHistory(t *testing.T) {
	cache, err := NewCache(CacheConfig{MaxMemoryMB: 4, TTL: time.Minute}, logging.GetLogger("test.cache"))
	require.NoError(t, err)
	engine := New(Options{Cache: cache})

	tr := buildTrace(t, failedRaw(
		[]map[string]interface{}{node("NotifyBilling", "http-call", "error")},
		map[string]interface{}{
			"node":    "NotifyBilling",
			"message": "request failed with status 429 Too Many Requests",
			"code":    float64(429),
		},
	))

	first, err := engine.Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)
	second, err := engine.Diagnose(context.Background(), tr, nil)
	require.NoError(t, err)
	assert.Same(t, first, second, "the second call must come from the cache")

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	history := []trace.ExecutionSummary{
		{ExecutionID: "exec-0", Status: trace.ExecutionSuccess, StoppedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
	}
	third, err := engine.Diagnose(context.Background(), tr, history)
	require.NoError(t, err)
	assert.NotSame(t, first, third, "different history is a different cache key")
}
