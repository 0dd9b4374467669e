// Package trace models a recorded workflow execution as an immutable,
// queryable view. A trace is built once from raw execution data via Build
// and is read-only afterwards; every accessor tolerates absent nodes and
// never panics.
package trace

import (
	"time"
)

// ExecutionStatus is the terminal status of a whole execution.
type ExecutionStatus string

const (
	// ExecutionSuccess marks an execution that completed without error.
	ExecutionSuccess ExecutionStatus = "success"
	// ExecutionError marks a failed execution. Failed executions carry a
	// FailureEvent describing where and how they stopped.
	ExecutionError ExecutionStatus = "error"
	// ExecutionRunning marks an execution that has not finished.
	ExecutionRunning ExecutionStatus = "running"
)

// NodeStatus is the result status of a single node run.
type NodeStatus string

const (
	// NodeSuccess marks a node run that produced output normally.
	NodeSuccess NodeStatus = "success"
	// NodeError marks a node run that raised the failure.
	NodeError NodeStatus = "error"
	// NodeSkipped marks a node run that was bypassed.
	NodeSkipped NodeStatus = "skipped"
)

// NodeRun is one step of the recorded execution path.
type NodeRun struct {
	Name         string                   `json:"name"`                   // unique within the path
	TypeTag      string                   `json:"type"`                   // role hint, e.g. "remote-shell", "http-call", "webhook-source", "transform"
	Status       NodeStatus               `json:"status"`                 // success, error, or skipped
	Config       map[string]interface{}   `json:"config,omitempty"`       // node parameters as recorded
	OutputSample []map[string]interface{} `json:"outputSample,omitempty"` // up to the sampling limit of output records
	ExecTimeMs   int64                    `json:"execTimeMs"`             // wall-clock run time in milliseconds
}

// FailureEvent describes where and how a failed execution stopped.
type FailureEvent struct {
	NodeName          string `json:"nodeName"`                    // name of the node that raised the failure
	Message           string `json:"message"`                     // raw error message
	Code              string `json:"code,omitempty"`              // machine code, e.g. "429" or "ETIMEDOUT"
	Stack             string `json:"stack,omitempty"`             // stack trace when recorded
	FailingExpression string `json:"failingExpression,omitempty"` // expression under evaluation, e.g. "body.email"
}

// ExecutionTrace is the validated, immutable view of one recorded
// execution. Construct it with Build; treat all fields as read-only.
type ExecutionTrace struct {
	ExecutionID string          `json:"executionId"`
	WorkflowID  string          `json:"workflowId,omitempty"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"startedAt,omitempty"`
	StoppedAt   time.Time       `json:"stoppedAt,omitempty"`
	Path        []NodeRun       `json:"path"`              // ordered as executed
	Failure     *FailureEvent   `json:"failure,omitempty"` // present exactly when Status is error

	index       map[string]int // name -> position, built once
	fingerprint string         // content hash, built once
}

// ExecutionSummary is the slim record of a prior execution of the same
// workflow, used as auxiliary context by history-sensitive predicates.
type ExecutionSummary struct {
	ExecutionID string          `json:"executionId"`
	Status      ExecutionStatus `json:"status"`
	StoppedAt   time.Time       `json:"stoppedAt"`
}

// NodeCount returns the number of node runs in the path.
func (t *ExecutionTrace) NodeCount() int {
	return len(t.Path)
}

// NodeAt returns the node run at the given position, or nil when the
// position is out of range.
func (t *ExecutionTrace) NodeAt(i int) *NodeRun {
	if i < 0 || i >= len(t.Path) {
		return nil
	}
	return &t.Path[i]
}

// IndexOf returns the position of the named node, or -1 when the name does
// not appear in the path.
func (t *ExecutionTrace) IndexOf(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// NodeByName returns the named node run, or nil when absent.
func (t *ExecutionTrace) NodeByName(name string) *NodeRun {
	i := t.IndexOf(name)
	if i < 0 {
		return nil
	}
	return &t.Path[i]
}

// NodesBefore returns a copy of the nodes that ran strictly before the
// named node. The slice is empty when the node is first in the path or
// absent altogether.
func (t *ExecutionTrace) NodesBefore(name string) []NodeRun {
	i := t.IndexOf(name)
	if i <= 0 {
		return []NodeRun{}
	}
	before := make([]NodeRun, i)
	copy(before, t.Path[:i])
	return before
}

// Sample returns up to limit output records of the named node. It returns
// an empty slice when the node is absent, recorded no output, or limit is
// not positive.
func (t *ExecutionTrace) Sample(name string, limit int) []map[string]interface{} {
	node := t.NodeByName(name)
	if node == nil || limit <= 0 || len(node.OutputSample) == 0 {
		return []map[string]interface{}{}
	}
	n := limit
	if n > len(node.OutputSample) {
		n = len(node.OutputSample)
	}
	sample := make([]map[string]interface{}, n)
	copy(sample, node.OutputSample[:n])
	return sample
}

// FailingNode returns the node run named by the failure event, or nil when
// the execution did not fail.
func (t *ExecutionTrace) FailingNode() *NodeRun {
	if t.Failure == nil {
		return nil
	}
	return t.NodeByName(t.Failure.NodeName)
}

// Duration returns the recorded wall-clock duration of the execution, or 0
// when either timestamp is missing.
func (t *ExecutionTrace) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.StoppedAt.IsZero() {
		return 0
	}
	return t.StoppedAt.Sub(t.StartedAt)
}

// Fingerprint returns a stable content hash of the trace. Two traces built
// from equal raw input share a fingerprint, which makes it usable as a
// cache key for deterministic diagnosis results.
func (t *ExecutionTrace) Fingerprint() string {
	return t.fingerprint
}
