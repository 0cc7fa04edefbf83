package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/deadlink/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
//  1. It works in all terminals and CI logs without compatibility issues
//  2. It's easier to pipe to files or other tools
type SimpleWriter struct {
	baseWriter

	// verbose adds the external link listing and failure messages.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeDeadLinks(&sb, report)
	if w.verbose {
		w.writeExternals(&sb, report)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.Report) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          DEADLINK REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed:           %s\n", report.Seed)
	fmt.Fprintf(sb, "Target:         %s\n", report.Target)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(10*time.Millisecond))

	switch {
	case report.Error != "":
		fmt.Fprintf(sb, "Status:         ERROR - %s\n", report.Error)
	case report.HasDeadLinks():
		fmt.Fprintf(sb, "Status:         %d dead link(s) found\n", len(report.DeadURLs))
	default:
		sb.WriteString("Status:         No dead links\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.Report) {
	section(sb, "SUMMARY")

	s := report.Summary
	fmt.Fprintf(sb, "  Pages visited:    %d\n", s.PagesVisited)
	fmt.Fprintf(sb, "  OK:               %d\n", s.PagesOK)
	fmt.Fprintf(sb, "  Dead:             %d\n", s.PagesDead)
	fmt.Fprintf(sb, "  External links:   %d (%d checked)\n", s.ExternalLinks, s.ExternalChecked)
	fmt.Fprintf(sb, "  Dead references:  %d\n", s.DeadReferences)
	sb.WriteString("\n")

	if len(report.DeadURLs) == 0 {
		return
	}
	sb.WriteString("  By failure kind:\n")
	for _, kind := range model.AllFailureKinds() {
		if n := s.FailuresByKind[kind]; n > 0 {
			fmt.Fprintf(sb, "    %-22s %d\n", kindLabel(kind)+":", n)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDeadLinks(sb *strings.Builder, report *model.Report) {
	if len(report.DeadLinks) == 0 {
		return
	}
	section(sb, "DEAD LINKS BY PAGE")

	for _, page := range report.DeadLinks {
		fmt.Fprintf(sb, "[page] %s\n", page.Page)
		for _, link := range page.Links {
			fmt.Fprintf(sb, "  x %s (%s)\n", link.URL, describeDead(link))
			if w.verbose && link.Error != "" {
				fmt.Fprintf(sb, "      %s\n", link.Error)
			}
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeExternals(sb *strings.Builder, report *model.Report) {
	if len(report.Externals) == 0 {
		return
	}
	section(sb, "EXTERNAL LINKS")

	for _, ext := range report.Externals {
		fmt.Fprintf(sb, "  %-20s %s\n", ext.Status.String(), ext.URL)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by deadlink\n")
	sb.WriteString("https://github.com/nao1215/deadlink\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
