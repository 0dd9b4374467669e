package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DefaultSampleLimit is the number of output records kept per node when the
// caller does not configure a limit.
const DefaultSampleLimit = 2

// BuildOptions tunes the validating build step.
type BuildOptions struct {
	// SampleLimit caps the output records retained per node run. Values
	// below 1 fall back to DefaultSampleLimit.
	SampleLimit int
}

// Build constructs an ExecutionTrace from raw, untrusted execution data.
// It validates the structural invariants of the model and returns a
// MalformedTraceError when they do not hold:
//
//   - status must be success, error, or running
//   - a failure event is present exactly when status is error
//   - the failure must reference a node in the path
//   - node names must be unique within the path
//
// Build is pure: equal raw input always yields an equal trace.
func Build(raw map[string]interface{}, opts BuildOptions) (*ExecutionTrace, error) {
	if len(raw) == 0 {
		return nil, NewMalformedTraceError("execution data is empty")
	}

	limit := opts.SampleLimit
	if limit < 1 {
		limit = DefaultSampleLimit
	}

	t := &ExecutionTrace{
		ExecutionID: stringValue(raw, "id"),
		WorkflowID:  stringValue(raw, "workflowId"),
	}
	if t.ExecutionID == "" {
		return nil, NewMalformedTraceError("execution id is required")
	}

	status := ExecutionStatus(stringValue(raw, "status"))
	switch status {
	case ExecutionSuccess, ExecutionError, ExecutionRunning:
		t.Status = status
	default:
		return nil, NewMalformedTraceError("execution %s has invalid status %q", t.ExecutionID, status)
	}

	t.StartedAt = timeValue(raw, "startedAt")
	t.StoppedAt = timeValue(raw, "stoppedAt")

	rawPath, ok := raw["path"].([]interface{})
	if !ok || len(rawPath) == 0 {
		return nil, NewMalformedTraceError("execution %s has no recorded node runs", t.ExecutionID)
	}

	t.Path = make([]NodeRun, 0, len(rawPath))
	t.index = make(map[string]int, len(rawPath))
	for i, rawNode := range rawPath {
		nodeMap, ok := rawNode.(map[string]interface{})
		if !ok {
			return nil, NewMalformedTraceError("path[%d] is not an object", i)
		}
		node, err := buildNode(nodeMap, i, limit)
		if err != nil {
			return nil, err
		}
		if _, dup := t.index[node.Name]; dup {
			return nil, NewMalformedTraceError("duplicate node name %q at path[%d]", node.Name, i)
		}
		t.index[node.Name] = i
		t.Path = append(t.Path, node)
	}

	if rawFailure, present := raw["error"]; present && rawFailure != nil {
		failureMap, ok := rawFailure.(map[string]interface{})
		if !ok {
			return nil, NewMalformedTraceError("execution %s has a non-object error field", t.ExecutionID)
		}
		t.Failure = &FailureEvent{
			NodeName:          stringValue(failureMap, "node"),
			Message:           stringValue(failureMap, "message"),
			Code:              codeValue(failureMap, "code"),
			Stack:             stringValue(failureMap, "stack"),
			FailingExpression: stringValue(failureMap, "expression"),
		}
	}

	if t.Status == ExecutionError && t.Failure == nil {
		return nil, NewMalformedTraceError("execution %s has status error but no failure event", t.ExecutionID)
	}
	if t.Status != ExecutionError && t.Failure != nil {
		return nil, NewMalformedTraceError("execution %s has a failure event but status %q", t.ExecutionID, t.Status)
	}
	if t.Failure != nil {
		if t.Failure.NodeName == "" {
			return nil, NewMalformedTraceError("execution %s failure event is missing the node name", t.ExecutionID)
		}
		if t.IndexOf(t.Failure.NodeName) < 0 {
			return nil, NewMalformedTraceError("execution %s failure references node %q which is not in the path",
				t.ExecutionID, t.Failure.NodeName)
		}
	}

	t.fingerprint = computeFingerprint(t)
	return t, nil
}

// buildNode parses a single node run. The output sample is capped at limit
// records; records that are not objects are dropped rather than rejected,
// they only serve as evidence.
func buildNode(m map[string]interface{}, pos, limit int) (NodeRun, error) {
	node := NodeRun{
		Name:       stringValue(m, "name"),
		TypeTag:    stringValue(m, "type"),
		ExecTimeMs: int64Value(m, "execTimeMs"),
	}
	if node.Name == "" {
		return node, NewMalformedTraceError("path[%d] is missing the node name", pos)
	}

	status := NodeStatus(stringValue(m, "status"))
	switch status {
	case NodeSuccess, NodeError, NodeSkipped:
		node.Status = status
	default:
		return node, NewMalformedTraceError("node %q has invalid status %q", node.Name, status)
	}

	if config, ok := m["config"].(map[string]interface{}); ok {
		node.Config = config
	}

	if rawOutput, ok := m["output"].([]interface{}); ok {
		for _, rawRecord := range rawOutput {
			if len(node.OutputSample) >= limit {
				break
			}
			if record, ok := rawRecord.(map[string]interface{}); ok {
				node.OutputSample = append(node.OutputSample, record)
			}
		}
	}

	return node, nil
}

// Summarize extracts the slim prior-execution view from a raw record. It
// accepts both full execution records and already-slim history entries;
// only id, status, and stoppedAt are read.
func Summarize(raw map[string]interface{}) (ExecutionSummary, error) {
	s := ExecutionSummary{
		ExecutionID: stringValue(raw, "id"),
		StoppedAt:   timeValue(raw, "stoppedAt"),
	}
	if s.ExecutionID == "" {
		return s, NewMalformedTraceError("history entry is missing the execution id")
	}

	status := ExecutionStatus(stringValue(raw, "status"))
	switch status {
	case ExecutionSuccess, ExecutionError, ExecutionRunning:
		s.Status = status
	default:
		return s, NewMalformedTraceError("history entry %s has invalid status %q", s.ExecutionID, status)
	}

	return s, nil
}

// computeFingerprint hashes the canonical JSON form of the trace. Map keys
// marshal in sorted order, so equal content always hashes equally.
func computeFingerprint(t *ExecutionTrace) string {
	payload, err := json.Marshal(t)
	if err != nil {
		payload = []byte(t.ExecutionID)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func stringValue(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// codeValue reads a machine error code, which providers record either as a
// string ("ETIMEDOUT") or a number (429).
func codeValue(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func int64Value(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// timeValue accepts RFC3339 strings or unix-millisecond numbers. Anything
// else yields the zero time.
func timeValue(m map[string]interface{}, key string) time.Time {
	switch v := m[key].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts
		}
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	case int64:
		return time.UnixMilli(v).UTC()
	}
	return time.Time{}
}
