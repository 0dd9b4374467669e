// Package tools implements the MCP tools backed by the diagnosis engine.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/report"
	"github.com/varenko/inquest/internal/source"
	"github.com/varenko/inquest/internal/trace"
)

// DiagnoseExecutionTool implements the diagnose_execution MCP tool.
type DiagnoseExecutionTool struct {
	engine   *diagnosis.Engine
	renderer *report.Renderer
}

// NewDiagnoseExecutionTool creates a new diagnose_execution tool.
func NewDiagnoseExecutionTool(engine *diagnosis.Engine) *DiagnoseExecutionTool {
	return &DiagnoseExecutionTool{
		engine:   engine,
		renderer: report.NewRenderer(),
	}
}

// DiagnoseExecutionInput is the input for the diagnose_execution tool.
// Exactly one of Record and RecordPath must be set.
type DiagnoseExecutionInput struct {
	Record        map[string]interface{} `json:"record,omitempty"`
	RecordPath    string                 `json:"record_path,omitempty"`
	HistoryPath   string                 `json:"history_path,omitempty"`
	IncludeReport bool                   `json:"include_report,omitempty"`
}

// DiagnoseExecutionOutput is the result returned to the MCP client.
type DiagnoseExecutionOutput struct {
	Diagnosis *diagnosis.Diagnosis `json:"diagnosis"`
	Run       diagnosis.RunInfo    `json:"run"`
	Report    string               `json:"report,omitempty"`
}

// Execute runs the diagnosis and returns the structured result.
func (t *DiagnoseExecutionTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	started := time.Now()

	var params DiagnoseExecutionInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if params.Record == nil && params.RecordPath == "" {
		return nil, fmt.Errorf("either record or record_path is required")
	}
	if params.Record != nil && params.RecordPath != "" {
		return nil, fmt.Errorf("record and record_path are mutually exclusive")
	}

	record := params.Record
	if record == nil {
		var err error
		record, err = source.ReadRecordFile(params.RecordPath)
		if err != nil {
			return nil, err
		}
	}

	var history []trace.ExecutionSummary
	if params.HistoryPath != "" {
		var err error
		history, err = source.ReadHistoryFile(params.HistoryPath)
		if err != nil {
			return nil, err
		}
	}

	tr, err := trace.Build(record, trace.BuildOptions{SampleLimit: t.engine.Params().SampleLimit})
	if err != nil {
		return nil, err
	}

	d, err := t.engine.Diagnose(ctx, tr, history)
	if err != nil {
		return nil, err
	}

	out := DiagnoseExecutionOutput{
		Diagnosis: d,
		Run:       diagnosis.NewRunInfo(started),
	}
	if params.IncludeReport {
		out.Report = t.renderer.Render(d, out.Run)
	}
	return out, nil
}
