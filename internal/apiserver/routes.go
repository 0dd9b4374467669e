package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/signature"
	"github.com/varenko/inquest/internal/trace"
)

// registerHandlers registers all HTTP handlers
func (s *Server) registerHandlers() {
	s.router.HandleFunc("/api/v1/diagnose", s.withMethod(http.MethodPost, s.handleDiagnose))
	s.router.HandleFunc("/api/v1/patterns", s.withMethod(http.MethodGet, s.handlePatterns))

	s.router.HandleFunc("/healthz", s.handleHealth)
	s.router.HandleFunc("/readyz", s.handleReady)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
}

// diagnoseResponse pairs the deterministic diagnosis with its run envelope.
type diagnoseResponse struct {
	Diagnosis *diagnosis.Diagnosis `json:"diagnosis"`
	Run       diagnosis.RunInfo    `json:"run"`
}

// handleDiagnose analyzes one failed execution record. The body is either a
// bare execution record, or an envelope {"record": {...}, "history": [...]}
// when prior executions ride along. Execution records never carry a "record"
// key themselves, so the two forms cannot collide.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	tracer := s.getTracer("inquest.api")
	ctx, span := tracer.Start(r.Context(), "api.diagnose")
	defer span.End()

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("failed to parse request body: %v", err))
		return
	}

	record, history, err := splitPayload(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_HISTORY", err.Error())
		return
	}

	engine := s.currentEngine()

	tr, err := trace.Build(record, trace.BuildOptions{SampleLimit: engine.Params().SampleLimit})
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "MALFORMED_TRACE", err.Error())
		return
	}

	d, err := engine.Diagnose(ctx, tr, history)
	if err != nil {
		var malformed *trace.MalformedTraceError
		if errors.As(err, &malformed) {
			WriteError(w, http.StatusUnprocessableEntity, "MALFORMED_TRACE", err.Error())
			return
		}
		s.logger.ErrorWithErr("diagnosis failed for execution %s", err, tr.ExecutionID)
		WriteError(w, http.StatusInternalServerError, "DIAGNOSIS_FAILED", "diagnosis failed; see server logs")
		return
	}

	s.metrics.Observe(d, time.Since(started).Seconds())
	if stats, ok := engine.CacheStats(); ok {
		s.metrics.CacheHitRate.Set(stats.HitRate)
	}

	_ = WriteSuccess(w, diagnoseResponse{
		Diagnosis: d,
		Run:       diagnosis.NewRunInfo(started),
	})
}

// splitPayload separates the envelope form from a bare record and converts
// any history entries into their slim summary form.
func splitPayload(body map[string]interface{}) (map[string]interface{}, []trace.ExecutionSummary, error) {
	record, ok := body["record"].(map[string]interface{})
	if !ok {
		return body, nil, nil
	}

	rawHistory, ok := body["history"].([]interface{})
	if !ok {
		return record, nil, nil
	}

	history := make([]trace.ExecutionSummary, 0, len(rawHistory))
	for i, raw := range rawHistory {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("history entry %d is not an object", i)
		}
		summary, err := trace.Summarize(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		history = append(history, summary)
	}
	return record, history, nil
}

// patternInfo is one catalog entry in the /api/v1/patterns listing.
type patternInfo struct {
	ID          signature.PatternID        `json:"id"`
	Name        string                     `json:"name"`
	Summary     string                     `json:"summary"`
	Remediation signature.RemediationClass `json:"remediation"`
	Threshold   int                        `json:"threshold"`
	Priority    int                        `json:"priority"`
}

// handlePatterns lists the signature catalog the engine currently runs with,
// including effective thresholds and tie-break priority.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	registry := s.currentEngine().Registry()

	patterns := registry.Patterns()
	infos := make([]patternInfo, 0, len(patterns))
	for _, p := range patterns {
		infos = append(infos, patternInfo{
			ID:          p.ID,
			Name:        p.Name,
			Summary:     p.Summary,
			Remediation: p.Remediation,
			Threshold:   registry.Threshold(p),
			Priority:    registry.Priority(p.ID),
		})
	}

	_ = WriteSuccess(w, map[string]interface{}{"patterns": infos})
}
