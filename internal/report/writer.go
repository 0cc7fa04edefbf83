package report

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/deadlink/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl reports in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.Report) (int, error)
}

// MultiWriter writes to multiple Writers.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// kindLabel renders a failure kind for humans: "OTHER_NETWORK_ERROR"
// becomes "Other Network Error". A Caser is stateful, so each call makes its
// own.
func kindLabel(kind model.FailureKind) string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(kind.String()), "_", " "))
}

// describeDead renders the reason a link is dead, e.g. "OTHER_NETWORK_ERROR, HTTP 404".
func describeDead(d model.DeadLink) string {
	var sb strings.Builder
	sb.WriteString(d.Kind.String())
	if d.StatusCode != 0 {
		sb.WriteString(", HTTP ")
		sb.WriteString(strconv.Itoa(d.StatusCode))
	}
	if d.External {
		sb.WriteString(", external")
	}
	return sb.String()
}
