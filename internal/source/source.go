// Package source reads execution records and prior-execution history from
// local files or streams. It performs no validation beyond JSON well-formedness;
// the trace builder owns structural checks.
package source

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/varenko/inquest/internal/trace"
)

// ReadRecord parses a raw execution record from r. The result is the
// untrusted nested form consumed by trace.Build.
func ReadRecord(r io.Reader) (map[string]interface{}, error) {
	var record map[string]interface{}
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&record); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty execution record")
		}
		return nil, fmt.Errorf("failed to parse execution record: %w", err)
	}
	return record, nil
}

// ReadRecordFile reads and parses a single execution record file.
func ReadRecordFile(path string) (map[string]interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open execution record: %w", err)
	}
	defer file.Close()

	record, err := ReadRecord(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return record, nil
}

// ReadHistory parses a JSON array of prior executions for the same workflow.
// Entries may be full execution records or already-slim ones; only id,
// status, and stoppedAt are read. An empty array is valid and yields an
// empty, non-nil slice.
func ReadHistory(r io.Reader) ([]trace.ExecutionSummary, error) {
	var entries []map[string]interface{}
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&entries); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty history file")
		}
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	summaries := make([]trace.ExecutionSummary, 0, len(entries))
	for i, entry := range entries {
		summary, err := trace.Summarize(entry)
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ReadHistoryFile reads and parses a prior-execution history file.
func ReadHistoryFile(path string) ([]trace.ExecutionSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	history, err := ReadHistory(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return history, nil
}
