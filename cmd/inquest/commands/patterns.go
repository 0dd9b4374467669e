package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var patternsConfigPath string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the registered failure signatures",
	Long: `List the failure signatures the engine matches executions against,
with their match thresholds, tie-break priority, and remediation class.
Threshold and priority overrides from the config file are applied.`,
	Run: runPatterns,
}

func init() {
	patternsCmd.Flags().StringVar(&patternsConfigPath, "config", "",
		"Path to the engine configuration YAML file (defaults apply when omitted)")
}

// patternEntry is the YAML projection of one registered signature.
type patternEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Summary     string `yaml:"summary"`
	Remediation string `yaml:"remediation"`
	Threshold   int    `yaml:"threshold"`
	Priority    int    `yaml:"priority"`
	Predicates  int    `yaml:"predicates"`
}

func runPatterns(cmd *cobra.Command, args []string) {
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}

	cfg, err := loadConfig(patternsConfigPath)
	HandleError(err, "Configuration error")

	registry, err := cfg.Engine.Registry()
	HandleError(err, "Configuration error")

	entries := make([]patternEntry, 0, registry.Len())
	for _, p := range registry.Patterns() {
		entries = append(entries, patternEntry{
			ID:          string(p.ID),
			Name:        p.Name,
			Summary:     p.Summary,
			Remediation: string(p.Remediation),
			Threshold:   registry.Threshold(p),
			Priority:    registry.Priority(p.ID),
			Predicates:  len(p.Predicates),
		})
	}

	out, err := yaml.Marshal(map[string][]patternEntry{"patterns": entries})
	HandleError(err, "Failed to render patterns")
	fmt.Print(string(out))
}
