// Package report renders a Diagnosis into a human-readable markdown findings
// report. The diagnosis engine never generates prose; all presentation text,
// including remediation guidance, lives here.
package report

import (
	"fmt"
	"strings"

	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/signature"
)

// Renderer turns diagnoses into markdown.
type Renderer struct{}

// NewRenderer creates a new Renderer instance.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render produces the full markdown report for one diagnosis. The RunInfo
// envelope may be zero; its line is omitted when no diagnosis ID is set.
func (r *Renderer) Render(d *diagnosis.Diagnosis, info diagnosis.RunInfo) string {
	var sb strings.Builder

	// 1. Header: which execution failed, and where.
	sb.WriteString(fmt.Sprintf("# Execution Diagnosis: %s\n\n", d.ExecutionID))
	if d.WorkflowID != "" {
		sb.WriteString(fmt.Sprintf("**Workflow:** `%s`\n", d.WorkflowID))
	}
	if d.Failure != nil {
		sb.WriteString(fmt.Sprintf("**Failed at:** `%s` — %s\n", d.Failure.NodeName, d.Failure.Message))
		if d.Failure.Code != "" {
			sb.WriteString(fmt.Sprintf("**Error code:** `%s`\n", d.Failure.Code))
		}
		if d.Failure.FailingExpression != "" {
			sb.WriteString(fmt.Sprintf("**Failing expression:** `%s`\n", d.Failure.FailingExpression))
		}
	}
	if info.DiagnosisID != "" {
		sb.WriteString(fmt.Sprintf("**Diagnosis:** `%s`, generated %s in %dms\n",
			info.DiagnosisID, info.GeneratedAt.Format("2006-01-02 15:04:05 MST"), info.TookMs))
	}
	sb.WriteString("\n")

	// 2. Findings, primary first.
	sb.WriteString("## Findings\n\n")
	if d.Unclassified {
		sb.WriteString("No signature reached its confidence threshold; this failure is **unclassified**.\n")
		sb.WriteString("The score sheet below shows how close each known signature came.\n\n")
		r.writeOrigin(&sb, d)
	} else {
		for i := range d.Findings {
			r.writeFinding(&sb, d, i)
		}
	}

	// 3. Score sheet: every evaluated signature, matched or not.
	sb.WriteString("## Score sheet\n\n")
	sb.WriteString("| Signature | Confidence | Threshold | Matched |\n")
	sb.WriteString("|-----------|-----------:|----------:|:-------:|\n")
	for _, score := range d.Scores {
		matched := "no"
		if score.Matched {
			matched = "yes"
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
			score.Pattern, score.Confidence, score.Threshold, matched))
	}

	return sb.String()
}

// writeFinding renders one ranked finding with its evidence and guidance.
func (r *Renderer) writeFinding(sb *strings.Builder, d *diagnosis.Diagnosis, i int) {
	f := &d.Findings[i]

	sb.WriteString(fmt.Sprintf("### %d. %s — %d%% confidence\n\n", i+1, f.Name, f.Confidence))
	sb.WriteString(f.Summary)
	sb.WriteString("\n\n")

	if f.Annotation != "" {
		sb.WriteString(fmt.Sprintf("> %s\n\n", f.Annotation))
	}

	// Origin and symptom only make sense on the primary finding; secondary
	// findings share the same traced origin.
	if i == 0 {
		r.writeOrigin(sb, d)
	}

	sb.WriteString("**Evidence:**\n")
	for _, hit := range f.Hits {
		sb.WriteString(fmt.Sprintf("- `%s` (+%d): %s\n", hit.Predicate, hit.Weight, hit.Detail))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("**Suggested fix** (`%s`): %s\n\n", f.Remediation, guidance(f.Remediation)))
}

// writeOrigin renders the originating-vs-symptom distinction.
func (r *Renderer) writeOrigin(sb *strings.Builder, d *diagnosis.Diagnosis) {
	origin := d.Origin
	symptom := ""
	if d.Failure != nil {
		symptom = d.Failure.NodeName
	}

	if symptom != "" && origin.NodeName != symptom {
		sb.WriteString(fmt.Sprintf("**Originating node:** `%s` (step %d) — %s\n",
			origin.NodeName, origin.Index+1, origin.Reason))
		sb.WriteString(fmt.Sprintf("**Symptom surfaced at:** `%s`\n\n", symptom))
		return
	}

	sb.WriteString(fmt.Sprintf("**Originating node:** `%s` (step %d) — %s\n\n",
		origin.NodeName, origin.Index+1, origin.Reason))
}

// guidance returns the fix text for a remediation class.
func guidance(class signature.RemediationClass) string {
	switch class {
	case signature.RemediationSingleSession:
		return "Run the producing and consuming steps in the same session. Commands issued " +
			"over separate remote connections do not share working directories or temporary " +
			"files; combine them into one invocation or write to a durable shared path."
	case signature.RemediationGuardFields:
		return "Guard the expression against records that lack the referenced field. Add a " +
			"default value, or filter such records out upstream, so a sporadically absent " +
			"field cannot abort the run."
	case signature.RemediationThrottle:
		return "Slow the request rate. Batch the calls, add a wait between batches, and " +
			"honor any Retry-After hint from the service instead of retrying immediately."
	case signature.RemediationRefreshAuth:
		return "Refresh the credential used by the failing node. Expired tokens and revoked " +
			"keys both surface as authorization failures; reconnect the credential and re-run."
	case signature.RemediationRaiseTimeout:
		return "Raise the node's timeout or shrink the unit of work per call. The recorded " +
			"execution time ran up against the configured ceiling."
	case signature.RemediationNormalizeTypes:
		return "Normalize the field's type before comparing. Upstream records disagree about " +
			"the type, so cast explicitly instead of relying on loose comparison."
	default:
		return "Review the evidence above; no canned guidance exists for this remediation class."
	}
}
