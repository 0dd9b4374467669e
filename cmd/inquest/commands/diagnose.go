package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/report"
	"github.com/varenko/inquest/internal/source"
	"github.com/varenko/inquest/internal/trace"
)

var (
	historyPath  string
	configPath   string
	outputFormat string
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <record.json>",
	Short: "Diagnose a failed workflow execution",
	Long: `Diagnose a failed workflow execution from its recorded trace.

Reads an execution record, evaluates every registered failure signature
against it, and prints the ranked findings with weighted evidence, the
originating node, and a suggested remediation. Pass '-' to read the
record from stdin.`,
	Args: cobra.ExactArgs(1),
	Run:  runDiagnose,
}

func init() {
	diagnoseCmd.Flags().StringVar(&historyPath, "history", "",
		"Path to a JSON array of prior executions of the same workflow, used by time-correlated signatures")
	diagnoseCmd.Flags().StringVar(&configPath, "config", "",
		"Path to the engine configuration YAML file (defaults apply when omitted)")
	diagnoseCmd.Flags().StringVar(&outputFormat, "format", "pretty",
		"Output format: json, markdown, or pretty (markdown rendered for the terminal)")
}

func runDiagnose(cmd *cobra.Command, args []string) {
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}

	cfg, err := loadConfig(configPath)
	HandleError(err, "Configuration error")

	opts, err := cfg.EngineOptions()
	HandleError(err, "Configuration error")

	// One-shot runs never hit the same trace twice, so no cache is attached.
	engine := diagnosis.New(opts)

	started := time.Now()

	var record map[string]interface{}
	if args[0] == "-" {
		record, err = source.ReadRecord(os.Stdin)
	} else {
		record, err = source.ReadRecordFile(args[0])
	}
	HandleError(err, "Failed to read execution record")

	var history []trace.ExecutionSummary
	if historyPath != "" {
		history, err = source.ReadHistoryFile(historyPath)
		HandleError(err, "Failed to read execution history")
	}

	tr, err := trace.Build(record, trace.BuildOptions{SampleLimit: engine.Params().SampleLimit})
	HandleError(err, "Malformed execution record")

	d, err := engine.Diagnose(cmd.Context(), tr, history)
	HandleError(err, "Diagnosis failed")

	info := diagnosis.NewRunInfo(started)
	HandleError(printDiagnosis(os.Stdout, d, info, outputFormat), "Failed to render diagnosis")
}

// printDiagnosis writes the diagnosis to w in the requested format.
func printDiagnosis(w io.Writer, d *diagnosis.Diagnosis, info diagnosis.RunInfo, format string) error {
	switch format {
	case "json":
		envelope := struct {
			Diagnosis *diagnosis.Diagnosis `json:"diagnosis"`
			Run       diagnosis.RunInfo    `json:"run"`
		}{Diagnosis: d, Run: info}

		out, err := json.MarshalIndent(envelope, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil

	case "markdown":
		fmt.Fprint(w, report.NewRenderer().Render(d, info))
		return nil

	case "pretty":
		markdown := report.NewRenderer().Render(d, info)

		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			// No usable terminal style; the raw markdown is still readable.
			fmt.Fprint(w, markdown)
			return nil
		}

		rendered, err := renderer.Render(markdown)
		if err != nil {
			fmt.Fprint(w, markdown)
			return nil
		}
		fmt.Fprint(w, rendered)
		return nil

	default:
		return fmt.Errorf("unknown format %q (must be json, markdown, or pretty)", format)
	}
}
