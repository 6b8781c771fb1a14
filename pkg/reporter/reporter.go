package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opscart/rds-idle-manager/pkg/models"
)

// Format is the CLI output format for a sweep report
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Write renders the report in the requested format
func Write(w io.Writer, report *models.SweepReport, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatText, "":
		return writeText(w, report)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeText(w io.Writer, report *models.SweepReport) error {
	fmt.Fprintf(w, "Sweep %s (%s, %d resource(s))\n\n",
		report.ID,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		len(report.Outcomes))

	if len(report.Outcomes) == 0 {
		fmt.Fprintln(w, "No eligible resources found")
		return nil
	}

	for _, action := range report.Actions() {
		fmt.Fprintf(w, "  %s\n", action)
	}

	stops := report.Stops()
	fmt.Fprintf(w, "\n%d stop action(s) issued\n", stops)
	return nil
}

func writeJSON(w io.Writer, report *models.SweepReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"id":          report.ID,
		"started_at":  report.StartedAt.Format(time.RFC3339),
		"finished_at": report.FinishedAt.Format(time.RFC3339),
		"actions":     report.Actions(),
		"outcomes":    report.Outcomes,
	})
}
