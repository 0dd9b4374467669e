package diagnosis

import (
	"time"

	"github.com/google/uuid"

	"github.com/varenko/inquest/internal/signature"
	"github.com/varenko/inquest/internal/trace"
)

// Finding is one matched pattern with the evidence that carried it over its
// threshold.
type Finding struct {
	Pattern     signature.PatternID        `json:"pattern"`
	Name        string                     `json:"name"`
	Summary     string                     `json:"summary"`
	Remediation signature.RemediationClass `json:"remediation"`
	Confidence  int                        `json:"confidence"`           // 0-100 after the cap
	Threshold   int                        `json:"threshold"`            // the bar this finding cleared
	Hits        []signature.Hit            `json:"hits"`                 // the predicates that fired
	Annotation  string                     `json:"annotation,omitempty"` // set when the finding is a consequence of the primary
}

// Score records how one pattern fared. Every evaluated pattern keeps its
// score, matched or not, so reports can show what was considered and
// rejected.
type Score struct {
	Pattern    signature.PatternID `json:"pattern"`
	Confidence int                 `json:"confidence"`
	Threshold  int                 `json:"threshold"`
	Matched    bool                `json:"matched"`
}

// Origin names the node the defect is attributed to.
type Origin struct {
	NodeName string `json:"nodeName"`
	NodeType string `json:"nodeType,omitempty"`
	Index    int    `json:"index"`  // position in the execution path
	Reason   string `json:"reason"` // what qualified the node, or why attribution stayed local
}

// Diagnosis is the deterministic outcome of analyzing one failed execution:
// identical traces yield byte-identical diagnoses. Anything run-specific
// (assigned identifiers, wall-clock timestamps) belongs in RunInfo instead.
type Diagnosis struct {
	ExecutionID  string              `json:"executionId"`
	WorkflowID   string              `json:"workflowId,omitempty"`
	Fingerprint  string              `json:"fingerprint"`  // content hash of the analyzed trace
	Unclassified bool                `json:"unclassified"` // no pattern reached its threshold
	Findings     []Finding           `json:"findings"`     // ranked, primary first; empty when unclassified
	Scores       []Score             `json:"scores"`       // every evaluated pattern, in priority order
	Origin       Origin              `json:"origin"`
	Failure      *trace.FailureEvent `json:"failure"` // raw failure data, always carried
}

// Primary returns the top-ranked finding, or nil when unclassified.
func (d *Diagnosis) Primary() *Finding {
	if len(d.Findings) == 0 {
		return nil
	}
	return &d.Findings[0]
}

// RunInfo is the envelope callers attach to a Diagnosis: an assigned
// identifier, when it was produced, and how long production took.
type RunInfo struct {
	DiagnosisID string    `json:"diagnosisId"`
	GeneratedAt time.Time `json:"generatedAt"`
	TookMs      int64     `json:"tookMs"`
}

// NewRunInfo stamps the envelope for a diagnosis run that began at started.
func NewRunInfo(started time.Time) RunInfo {
	now := time.Now().UTC()
	return RunInfo{
		DiagnosisID: uuid.NewString(),
		GeneratedAt: now,
		TookMs:      now.Sub(started).Milliseconds(),
	}
}
