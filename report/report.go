// Package report turns sweep results and telemetry into human readable
// output: a markdown summary of the runs, one chart per run and an HTML
// page linking all charts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/weiihann/cachoor/harness"
)

// Generate writes a markdown summary table for the given results.
func Generate(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	counts := countOutcomes(results)

	fmt.Fprintln(w, "## Sweep Results")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Runs: %d completed, %d timed out, %d failed, %d interrupted\n",
		counts[harness.StateCompleted],
		counts[harness.StateTimedOut],
		counts[harness.StateFailed],
		counts[harness.StateInterrupted],
	)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Variant | Cache | Task | Outcome | Elapsed | DB Size |")
	fmt.Fprintln(w, "|---------|-------|------|---------|---------|---------|")

	for _, r := range results {
		outcome := string(r.Outcome)
		if r.Failed() {
			outcome = "**" + outcome + "**"
		}

		fmt.Fprintf(w, "| %s | %dMB | %s | %s | %s | %s |\n",
			r.Variant,
			r.CacheSizeMB,
			r.Task,
			outcome,
			formatMs(r.ElapsedMs),
			formatBytes(r.DBSizeBytes),
		)
	}

	var failed []harness.Result
	for _, r := range results {
		if r.Failed() && r.Error != "" {
			failed = append(failed, r)
		}
	}

	if len(failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")

		for _, r := range failed {
			fmt.Fprintf(w, "  - %s: %s\n", r.Key(), firstLine(r.Error))
		}
	}

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

func countOutcomes(results []harness.Result) map[harness.State]int {
	counts := make(map[harness.State]int)
	for _, r := range results {
		counts[r.Outcome]++
	}

	return counts
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}

func formatMs(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60*60*1000:
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	default:
		return fmt.Sprintf("%.2fh", float64(ms)/(60*60*1000))
	}
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
