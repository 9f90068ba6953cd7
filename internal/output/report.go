package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/torosent/crankbench/internal/metrics"
)

// Report is the structured document emitted by the JSON and YAML renderers.
type Report struct {
	Results []metrics.Snapshot `json:"results" yaml:"results"`
}

// TableHeaders are the columns of the summary table, after the workload name.
var TableHeaders = []string{
	"Costs", "Total", "Success", "Failure", "Throughput",
	"Avg", "Min", "Max", "StdDev", "95% LC", "95% UC",
}

// PrintReport outputs a human-readable summary of each measured workload.
func PrintReport(w io.Writer, results ...metrics.Snapshot) {
	for _, s := range results {
		title := "--- Benchmark Results ---"
		if s.Name != "" {
			title = fmt.Sprintf("--- Benchmark Results: %s ---", s.Name)
		}
		fmt.Fprintln(w, "\n"+title)
		if s.Cancelled {
			fmt.Fprintln(w, "Status:            cancelled")
		}
		fmt.Fprintf(w, "Total Invocations: %d\n", s.Total)
		fmt.Fprintf(w, "Successful:        %d\n", s.Success)
		fmt.Fprintf(w, "Failed:            %d\n", s.Failure)
		fmt.Fprintf(w, "Costs:             %s\n", metrics.FormatDuration(s.Costs))
		fmt.Fprintf(w, "Throughput:        %s/s\n", metrics.FormatRate(s.Throughput))
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  Avg:             %s\n", metrics.FormatDuration(s.Avg))
		fmt.Fprintf(w, "  Min:             %s\n", metrics.FormatDuration(s.Min))
		fmt.Fprintf(w, "  Max:             %s\n", metrics.FormatDuration(s.Max))
		fmt.Fprintf(w, "  StdDev:          %s\n", metrics.FormatNanos(s.StdDev))
		fmt.Fprintf(w, "  95%% CI:          [%s, %s]\n", metrics.FormatNanos(s.LowerCI), metrics.FormatNanos(s.UpperCI))
		fmt.Fprintf(w, "  P50:             %s\n", metrics.FormatDuration(s.P50))
		fmt.Fprintf(w, "  P90:             %s\n", metrics.FormatDuration(s.P90))
		fmt.Fprintf(w, "  P95:             %s\n", metrics.FormatDuration(s.P95))
		fmt.Fprintf(w, "  P99:             %s\n", metrics.FormatDuration(s.P99))
		if len(s.Errors) > 0 {
			fmt.Fprintln(w, "\nErrors:")
			for _, row := range metrics.SortedErrors(s.Errors) {
				fmt.Fprintf(w, "  %s: %d\n", row.Label, row.Count)
			}
		}
	}
}

// PrintTable renders results as an ASCII table under title.
func PrintTable(w io.Writer, title string, results ...metrics.Snapshot) {
	rows := make([][]string, 0, len(results))
	for _, s := range results {
		rows = append(rows, TableRow(s))
	}
	t := table.New().
		Border(lipgloss.ASCIIBorder()).
		Headers(append([]string{"Workload"}, TableHeaders...)...).
		Rows(rows...)
	if title != "" {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, t.String())
}

// TableRow formats one result in TableHeaders order, prefixed by its name.
func TableRow(s metrics.Snapshot) []string {
	name := s.Name
	if s.Cancelled {
		name += " (cancelled)"
	}
	return []string{
		name,
		metrics.FormatDuration(s.Costs),
		strconv.FormatInt(s.Total, 10),
		strconv.FormatInt(s.Success, 10),
		strconv.FormatInt(s.Failure, 10),
		metrics.FormatRate(s.Throughput),
		metrics.FormatDuration(s.Avg),
		metrics.FormatDuration(s.Min),
		metrics.FormatDuration(s.Max),
		metrics.FormatNanos(s.StdDev),
		metrics.FormatNanos(s.LowerCI),
		metrics.FormatNanos(s.UpperCI),
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, results ...metrics.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newReport(results))
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, results ...metrics.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newReport(results)); err != nil {
		return err
	}
	return enc.Close()
}

func newReport(results []metrics.Snapshot) Report {
	if results == nil {
		results = []metrics.Snapshot{}
	}
	return Report{Results: results}
}
