// Command gendata writes synthetic failed execution records for demos and
// load tests. Each record is a JSON file that `inquest diagnose` accepts;
// the optional history files carry prior executions of the same workflow.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	defaultOutputDir = "./testdata"
	defaultCount     = 10
)

var scenarios = []string{
	"session-visibility",
	"authorization-expiry",
	"rate-limiting",
	"timeout",
	"expression-reference",
	"type-mismatch",
	"unclassified",
}

func main() {
	outputDir := flag.String("output-dir", defaultOutputDir, "Output directory for generated files")
	count := flag.Int("count", defaultCount, "Number of execution records to generate")
	scenario := flag.String("scenario", "mixed", "Failure scenario: 'mixed' or one of "+fmt.Sprint(scenarios))
	withHistory := flag.Bool("history", false, "Also write a history file of prior executions per record")
	seed := flag.Int64("seed", 0, "Random seed (0 = use current time)")

	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	if *scenario != "mixed" && !knownScenario(*scenario) {
		fmt.Fprintf(os.Stderr, "unknown scenario %q (must be 'mixed' or one of %v)\n", *scenario, scenarios)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating execution records:\n")
	fmt.Printf("  Output directory: %s\n", *outputDir)
	fmt.Printf("  Count: %d\n", *count)
	fmt.Printf("  Scenario: %s\n", *scenario)
	fmt.Printf("  History files: %v\n", *withHistory)
	fmt.Printf("  Seed: %d\n", *seed)

	written := 0
	for i := 0; i < *count; i++ {
		name := *scenario
		if name == "mixed" {
			name = scenarios[rng.Intn(len(scenarios))]
		}

		record := generateRecord(rng, name)
		path := filepath.Join(*outputDir, fmt.Sprintf("execution-%s-%03d.json", name, i))
		if err := writeJSON(path, record); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		written++

		if *withHistory {
			history := generateHistory(rng, record)
			path := filepath.Join(*outputDir, fmt.Sprintf("history-%s-%03d.json", name, i))
			if err := writeJSON(path, history); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
				os.Exit(1)
			}
			written++
		}
	}

	fmt.Printf("Wrote %d files to %s\n", written, *outputDir)
}

func knownScenario(name string) bool {
	for _, s := range scenarios {
		if s == name {
			return true
		}
	}
	return false
}

var workflows = []struct {
	id    string
	nodes []map[string]interface{}
}{
	{
		id: "wf-order-sync",
		nodes: []map[string]interface{}{
			{"name": "Webhook", "type": "trigger"},
			{"name": "FetchOrders", "type": "http-call"},
			{"name": "TransformItems", "type": "code"},
			{"name": "PushItems", "type": "http-call"},
		},
	},
	{
		id: "wf-nightly-export",
		nodes: []map[string]interface{}{
			{"name": "Schedule", "type": "trigger"},
			{"name": "QueryDatabase", "type": "db-query"},
			{"name": "WriteExport", "type": "file-write"},
			{"name": "ReadExport", "type": "file-read"},
			{"name": "UploadExport", "type": "http-call"},
		},
	},
	{
		id: "wf-billing-notify",
		nodes: []map[string]interface{}{
			{"name": "Schedule", "type": "trigger"},
			{"name": "FetchInvoices", "type": "http-call"},
			{"name": "NotifyBilling", "type": "http-call"},
		},
	},
}

// generateRecord synthesizes one failed execution exhibiting the named
// scenario. The failing node is the last one; nodes before it succeed.
func generateRecord(rng *rand.Rand, scenario string) map[string]interface{} {
	wf := workflows[rng.Intn(len(workflows))]
	startedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC).Add(-time.Duration(rng.Intn(72)) * time.Hour)

	path := make([]interface{}, 0, len(wf.nodes))
	elapsed := int64(0)
	for i, tmpl := range wf.nodes {
		node := map[string]interface{}{
			"name":       tmpl["name"],
			"type":       tmpl["type"],
			"status":     "success",
			"execTimeMs": int64(50 + rng.Intn(400)),
		}
		if i == len(wf.nodes)-1 {
			node["status"] = "error"
			decorateFailingNode(rng, node, scenario)
		}
		elapsed += node["execTimeMs"].(int64)
		path = append(path, node)
	}

	// The sample-inconsistency scenarios need upstream records with a
	// sporadically absent field.
	if scenario == "expression-reference" || scenario == "type-mismatch" {
		upstream := path[len(path)-2].(map[string]interface{})
		upstream["output"] = []interface{}{
			map[string]interface{}{"customer": map[string]interface{}{"email": "ana@example.com"}, "total": 119.5},
			map[string]interface{}{"customer": map[string]interface{}{}, "total": "119.50"},
		}
	}

	failing := path[len(path)-1].(map[string]interface{})
	record := map[string]interface{}{
		"id":         "exec-" + uuid.NewString()[:8],
		"workflowId": wf.id,
		"status":     "error",
		"startedAt":  startedAt.Format(time.RFC3339),
		"stoppedAt":  startedAt.Add(time.Duration(elapsed) * time.Millisecond).Format(time.RFC3339),
		"path":       path,
		"error":      failureEvent(failing["name"].(string), scenario),
	}
	return record
}

// decorateFailingNode attaches scenario-specific node detail, like the
// configured ceiling a timeout ran up against.
func decorateFailingNode(rng *rand.Rand, node map[string]interface{}, scenario string) {
	if scenario == "timeout" {
		ceiling := int64(30000)
		node["config"] = map[string]interface{}{"timeoutMs": ceiling}
		// Land within the proximity window of the ceiling.
		node["execTimeMs"] = ceiling - int64(rng.Intn(1000))
	}
}

func failureEvent(nodeName, scenario string) map[string]interface{} {
	event := map[string]interface{}{"node": nodeName}
	switch scenario {
	case "session-visibility":
		event["message"] = "ENOENT: no such file or directory, open '/data/export.csv'"
		event["code"] = "ENOENT"
	case "authorization-expiry":
		event["message"] = "401 Unauthorized: access token has expired"
		event["code"] = 401
	case "rate-limiting":
		event["message"] = "429 Too Many Requests: rate limit exceeded, retry after 30s"
		event["code"] = 429
	case "timeout":
		event["message"] = "Request timed out after 30000 ms"
		event["code"] = "ETIMEDOUT"
	case "expression-reference":
		event["message"] = "Cannot read properties of undefined (reading 'email')"
		event["expression"] = "item.customer.email"
	case "type-mismatch":
		event["message"] = "expected number for field 'total' but was string"
		event["expression"] = "item.total"
	default:
		event["message"] = "worker exited before reporting a result"
	}
	return event
}

// generateHistory emits prior executions of the same workflow, the most
// recent one successful so time-correlated signatures have something to
// correlate against.
func generateHistory(rng *rand.Rand, record map[string]interface{}) []map[string]interface{} {
	stoppedAt, _ := time.Parse(time.RFC3339, record["stoppedAt"].(string))

	entries := make([]map[string]interface{}, 0, 3)
	for i := 1; i <= 3; i++ {
		status := "success"
		if i > 1 && rng.Intn(4) == 0 {
			status = "error"
		}
		entries = append(entries, map[string]interface{}{
			"id":        "exec-" + uuid.NewString()[:8],
			"status":    status,
			"stoppedAt": stoppedAt.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
		})
	}
	return entries
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
