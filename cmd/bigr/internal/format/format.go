// Package format provides consistent table and JSON output for CLI
// commands.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// Formatter renders command output.
type Formatter struct {
	stdout io.Writer
	stderr io.Writer
	json   bool
}

// New creates a Formatter. When jsonMode is set every Print call emits
// JSON instead of tables.
func New(stdout, stderr io.Writer, jsonMode bool) *Formatter {
	return &Formatter{stdout: stdout, stderr: stderr, json: jsonMode}
}

// JSONMode reports whether JSON output was requested.
func (f *Formatter) JSONMode() bool {
	return f.json
}

// PrintJSON writes data as indented JSON.
func (f *Formatter) PrintJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}

// PrintTable writes an aligned header + rows table.
func (f *Formatter) PrintTable(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(f.stdout, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// PrintSummary writes a highlighted one-line summary.
func (f *Formatter) PrintSummary(message string) {
	fmt.Fprintln(f.stdout, color.New(color.Bold).Sprint(message))
}

// PrintError writes an error line to stderr.
func (f *Formatter) PrintError(err error) {
	fmt.Fprintf(f.stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
}

// ConfidenceColor renders a confidence level with its conventional color.
func ConfidenceColor(level string) string {
	switch level {
	case "high":
		return color.GreenString(level)
	case "medium":
		return color.YellowString(level)
	case "low":
		return color.HiYellowString(level)
	default:
		return color.HiBlackString(level)
	}
}
