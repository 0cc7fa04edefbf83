package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/deadlink/internal/model"
)

// MarkdownWriter outputs reports in GitHub flavored Markdown, e.g. for a
// pull request comment or a CI job summary.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
//  1. Type-safe markdown generation
//  2. Support for tables, alerts and mermaid charts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeDeadLinks(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.Report) {
	md.H1("Dead Link Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + report.Seed + "`"},
			{"Target", "`" + report.Target + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().String()},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *model.Report) string {
	switch {
	case report.Error != "":
		return "❌ Error - " + report.Error
	case report.HasDeadLinks():
		return "⚠️ " + strconv.Itoa(len(report.DeadURLs)) + " dead link(s)"
	default:
		return "✅ No dead links"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.Report) {
	s := report.Summary

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages visited", strconv.Itoa(s.PagesVisited)},
			{"OK", strconv.Itoa(s.PagesOK)},
			{"Dead", strconv.Itoa(s.PagesDead)},
			{"External links", strconv.Itoa(s.ExternalLinks)},
			{"External links checked", strconv.Itoa(s.ExternalChecked)},
			{"Dead references", strconv.Itoa(s.DeadReferences)},
		},
	})
	md.PlainText("")

	if s.PagesVisited > 0 {
		w.writePieChart(md, report)
	}

	if report.HasDeadLinks() {
		rows := make([][]string, 0, 3)
		for _, kind := range model.AllFailureKinds() {
			rows = append(rows, []string{kindLabel(kind), strconv.Itoa(s.FailuresByKind[kind])})
		}
		md.H3("Failures by kind")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Kind", "Count"}, Rows: rows})
		md.PlainText("")
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of OK, dead and external URLs.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.Report) {
	s := report.Summary
	deadExternal := 0
	for _, d := range report.DeadURLs {
		if d.External {
			deadExternal++
		}
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Link Status"),
		piechart.WithShowData(true),
	)
	if s.PagesOK > 0 {
		chart.LabelAndIntValue("OK", uint64(s.PagesOK))
	}
	if dead := s.PagesDead + deadExternal; dead > 0 {
		chart.LabelAndIntValue("Dead", uint64(dead))
	}
	if ext := s.ExternalLinks - deadExternal; ext > 0 {
		chart.LabelAndIntValue("External", uint64(ext))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.Report) {
	switch {
	case report.Error != "":
		md.Cautionf("The crawl failed: %s", report.Error)
	case report.HasDeadLinks():
		md.Warningf("%d dead link(s) referenced from %d page(s).",
			len(report.DeadURLs), len(report.DeadLinks))
	default:
		md.Tip("No dead links found.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeDeadLinks(md *markdown.Markdown, report *model.Report) {
	md.H2("Dead Links")
	md.PlainText("")

	if len(report.DeadLinks) == 0 {
		md.PlainText("No dead links found.")
		md.PlainText("")
		return
	}

	for _, page := range report.DeadLinks {
		md.H3(page.Page)
		md.PlainText("")

		rows := make([][]string, len(page.Links))
		for i, link := range page.Links {
			status := "-"
			if link.StatusCode != 0 {
				status = strconv.Itoa(link.StatusCode)
			}
			rows[i] = []string{
				truncateString(link.URL, 80),
				kindLabel(link.Kind),
				status,
				truncateString(orDash(link.Error), 60),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Link", "Kind", "HTTP", "Error"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [deadlink](https://github.com/nao1215/deadlink)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
