package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/deadlink/internal/config"
	"github.com/nao1215/deadlink/internal/crawler"
	"github.com/nao1215/deadlink/internal/database"
)

// Constants for trend direction.
const (
	trendWorsened  = "worsened"
	trendImproved  = "improved"
	trendUnchanged = "unchanged"
)

// NewCompareCmd creates the compare command.
// It diffs the dead links of two stored runs of the same seed.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [seed-url]",
		Short: "Compare dead links between stored crawl runs",
		Long: `Compare shows which dead links appeared and which were fixed between two
stored runs of the same seed.

Runs are stored by 'deadlink crawl' (enabled by default, see --save). By
default the latest run is compared with the one before it.

Examples:
  # Compare the latest two runs
  deadlink compare https://example.com

  # List stored runs for a seed
  deadlink compare --list https://example.com

  # Compare the latest run with a specific one
  deadlink compare --with-run-id 5 https://example.com

  # Output the comparison as JSON
  deadlink compare --json https://example.com

  # List every seed in the database
  deadlink compare --list-seeds`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List stored runs for the seed")
	cmd.Flags().BoolP("list-seeds", "L", false,
		"List every seed with stored runs")
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare the latest run with this run (use --list to see IDs)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the run database")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listSeeds, err := flags.GetBool("list-seeds")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var seed string
	if !listSeeds {
		if len(args) == 0 {
			return errors.New("seed URL is required (use --list-seeds to see stored seeds)")
		}
		normalized, ok := crawler.Normalize(args[0], args[0])
		if !ok {
			return fmt.Errorf("invalid seed URL: %q", args[0])
		}
		seed = normalized
	}

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if listSeeds {
		return listStoredSeeds(ctx, db, out)
	}

	list, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	if list {
		return listRunHistory(ctx, db, seed, out)
	}

	withRunID, err := flags.GetInt64("with-run-id")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	result, err := buildComparison(ctx, db, seed, withRunID)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return outputComparisonJSON(out, result)
	case markdownOutput:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// listStoredSeeds prints every seed with at least one stored run.
func listStoredSeeds(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	seeds, err := db.ListSeeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to list seeds: %w", err)
	}

	if len(seeds) == 0 {
		fmt.Fprintln(out, "No stored runs found in the database.")
		fmt.Fprintln(out, "\nUse 'deadlink crawl <seed-url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Stored seeds (%d):\n\n", len(seeds))
	for _, s := range seeds {
		fmt.Fprintf(out, "  • %s\n", s)
	}
	fmt.Fprintln(out, "\nUse 'deadlink compare --list <seed-url>' to see the runs of a seed.")
	return nil
}

// listRunHistory prints the stored runs of seed, newest first.
func listRunHistory(ctx context.Context, db *database.CrawlDB, seed string, out io.Writer) error {
	runs, err := db.GetRunHistory(ctx, seed)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No stored runs found for %s\n", seed)
		return nil
	}

	fmt.Fprintf(out, "Run history for %s (%d runs):\n\n", seed, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-7s  %-5s  %s\n", "ID", "Date", "Pages", "Dead", "Error")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, run := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-7d  %-5d  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.PagesVisited,
			run.DeadCount,
			run.Error,
		)
	}

	fmt.Fprintln(out, "\nUse 'deadlink compare <seed-url>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'deadlink compare --with-run-id <id> <seed-url>' to compare with a specific run.")
	return nil
}

// ComparisonResult holds the difference between two runs of one seed.
type ComparisonResult struct {
	// Seed is the normalized seed URL.
	Seed string `json:"seed"`

	// PreviousRun and CurrentRun describe the compared runs.
	PreviousRun RunSummary `json:"previous_run"`
	CurrentRun  RunSummary `json:"current_run"`

	// NewDeadLinks are dead in the current run but not in the previous one.
	NewDeadLinks []DeadLinkChange `json:"new_dead_links"`

	// FixedDeadLinks were dead in the previous run and are not any more.
	FixedDeadLinks []DeadLinkChange `json:"fixed_dead_links"`

	// UnchangedCount is the number of URLs dead in both runs.
	UnchangedCount int `json:"unchanged_count"`

	// Trend is "improved", "worsened" or "unchanged".
	Trend string `json:"trend"`
}

// RunSummary describes one stored run.
type RunSummary struct {
	ID           int64     `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	PagesVisited int       `json:"pages_visited"`
	DeadCount    int       `json:"dead_count"`
}

// DeadLinkChange is a dead URL that appeared or disappeared.
type DeadLinkChange struct {
	URL          string   `json:"url"`
	Kind         string   `json:"kind"`
	StatusCode   int      `json:"status_code,omitempty"`
	ReferencedBy []string `json:"referenced_by,omitempty"`
}

// buildComparison loads both runs and diffs their dead URLs.
// withRunID selects the previous run; 0 means the run before the latest.
func buildComparison(ctx context.Context, db *database.CrawlDB, seed string, withRunID int64) (*ComparisonResult, error) {
	history, err := db.GetRunHistory(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no stored runs found for %s", seed)
	}

	current := history[0]
	var previous *database.RunMetadata

	if withRunID > 0 {
		for i := range history {
			if history[i].ID == withRunID {
				previous = &history[i]
				break
			}
		}
		if previous == nil {
			// Tell an unknown ID apart from one belonging to another seed.
			other, err := db.GetRunByID(ctx, withRunID)
			if err != nil {
				return nil, fmt.Errorf("run %d: %w", withRunID, err)
			}
			return nil, fmt.Errorf("run %d belongs to %s, not %s", withRunID, other.Seed, seed)
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("run %d is the latest run; choose an older one", withRunID)
		}
	} else {
		if len(history) < 2 {
			return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(history))
		}
		previous = &history[1]
	}

	previousDead, err := db.GetDeadLinks(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	currentDead, err := db.GetDeadLinks(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	result := compareDeadLinks(previousDead, currentDead)
	result.Seed = seed
	result.PreviousRun = summarizeRun(*previous)
	result.CurrentRun = summarizeRun(current)
	return result, nil
}

func summarizeRun(meta database.RunMetadata) RunSummary {
	return RunSummary{
		ID:           meta.ID,
		StartedAt:    meta.StartedAt,
		PagesVisited: meta.PagesVisited,
		DeadCount:    meta.DeadCount,
	}
}

// compareDeadLinks diffs two dead-URL sets by URL.
func compareDeadLinks(previous, current []database.DeadURLRecord) *ComparisonResult {
	result := &ComparisonResult{
		NewDeadLinks:   []DeadLinkChange{},
		FixedDeadLinks: []DeadLinkChange{},
	}

	prevSet := make(map[string]database.DeadURLRecord, len(previous))
	for _, r := range previous {
		prevSet[r.URL] = r
	}
	currSet := make(map[string]database.DeadURLRecord, len(current))
	for _, r := range current {
		currSet[r.URL] = r
	}

	for url, r := range currSet {
		if _, ok := prevSet[url]; ok {
			result.UnchangedCount++
			continue
		}
		result.NewDeadLinks = append(result.NewDeadLinks, toChange(r))
	}
	for url, r := range prevSet {
		if _, ok := currSet[url]; !ok {
			result.FixedDeadLinks = append(result.FixedDeadLinks, toChange(r))
		}
	}

	sortChanges(result.NewDeadLinks)
	sortChanges(result.FixedDeadLinks)

	switch {
	case len(current) < len(previous):
		result.Trend = trendImproved
	case len(current) > len(previous):
		result.Trend = trendWorsened
	default:
		result.Trend = trendUnchanged
	}
	return result
}

func toChange(r database.DeadURLRecord) DeadLinkChange {
	return DeadLinkChange{
		URL:          r.URL,
		Kind:         r.Kind.String(),
		StatusCode:   r.StatusCode,
		ReferencedBy: r.ReferencedBy,
	}
}

func sortChanges(changes []DeadLinkChange) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].URL < changes[j].URL })
}

// outputComparisonJSON writes the comparison result as JSON.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown writes the comparison result as Markdown.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	md.H1f("Dead Link Comparison: %s", result.Seed)
	md.PlainTextf("**Trend:** %s", formatTrend(result.Trend))
	md.LF()

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run ID", strconv.FormatInt(result.PreviousRun.ID, 10), strconv.FormatInt(result.CurrentRun.ID, 10), "-"},
			{
				"Date",
				result.PreviousRun.StartedAt.Local().Format("2006-01-02 15:04"),
				result.CurrentRun.StartedAt.Local().Format("2006-01-02 15:04"),
				"-",
			},
			{
				"Pages",
				strconv.Itoa(result.PreviousRun.PagesVisited),
				strconv.Itoa(result.CurrentRun.PagesVisited),
				formatDelta(result.CurrentRun.PagesVisited - result.PreviousRun.PagesVisited),
			},
			{
				"Dead links",
				strconv.Itoa(result.PreviousRun.DeadCount),
				strconv.Itoa(result.CurrentRun.DeadCount),
				formatDelta(result.CurrentRun.DeadCount - result.PreviousRun.DeadCount),
			},
		},
	})

	if len(result.NewDeadLinks) > 0 {
		md.H2f("New Dead Links (%d)", len(result.NewDeadLinks))
		items := make([]string, 0, len(result.NewDeadLinks))
		for _, c := range result.NewDeadLinks {
			items = append(items, fmt.Sprintf("%s %s", markdown.Code(c.URL), describeChange(c)))
		}
		md.BulletList(items...)
	}

	if len(result.FixedDeadLinks) > 0 {
		md.H2f("Fixed Dead Links (%d)", len(result.FixedDeadLinks))
		items := make([]string, 0, len(result.FixedDeadLinks))
		for _, c := range result.FixedDeadLinks {
			items = append(items, markdown.Strikethrough(c.URL))
		}
		md.BulletList(items...)
	}

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText(markdown.Italic(fmt.Sprintf("%d dead links unchanged", result.UnchangedCount)))
	}

	return md.Build()
}

// outputComparisonText writes the comparison result as plain text.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	fmt.Fprintf(out, "Dead Link Comparison: %s\n", result.Seed)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nTrend: %s\n", formatTrend(result.Trend))
	fmt.Fprintf(out, "\nPrevious run: #%d  %s\n", result.PreviousRun.ID,
		result.PreviousRun.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current run:  #%d  %s\n", result.CurrentRun.ID,
		result.CurrentRun.StartedAt.Local().Format("2006-01-02 15:04:05"))

	fmt.Fprintf(out, "\n  %-12s  %-10s  %-10s  %-10s\n", "", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 47))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Pages",
		result.PreviousRun.PagesVisited, result.CurrentRun.PagesVisited,
		formatDelta(result.CurrentRun.PagesVisited-result.PreviousRun.PagesVisited))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Dead links",
		result.PreviousRun.DeadCount, result.CurrentRun.DeadCount,
		formatDelta(result.CurrentRun.DeadCount-result.PreviousRun.DeadCount))

	if len(result.NewDeadLinks) > 0 {
		fmt.Fprintf(out, "\nNew Dead Links (%d):\n", len(result.NewDeadLinks))
		for _, c := range result.NewDeadLinks {
			fmt.Fprintf(out, "  [+] %s %s\n", c.URL, describeChange(c))
			for _, page := range c.ReferencedBy {
				fmt.Fprintf(out, "      linked from %s\n", page)
			}
		}
	}

	if len(result.FixedDeadLinks) > 0 {
		fmt.Fprintf(out, "\nFixed Dead Links (%d):\n", len(result.FixedDeadLinks))
		for _, c := range result.FixedDeadLinks {
			fmt.Fprintf(out, "  [-] %s\n", c.URL)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d dead links\n", result.UnchangedCount)
	}
	return nil
}

// describeChange renders the failure of a dead link, e.g. "(OTHER_NETWORK_ERROR, HTTP 404)".
func describeChange(c DeadLinkChange) string {
	if c.StatusCode != 0 {
		return fmt.Sprintf("(%s, HTTP %d)", c.Kind, c.StatusCode)
	}
	return "(" + c.Kind + ")"
}

// formatTrend formats the trend for display.
func formatTrend(trend string) string {
	switch trend {
	case trendImproved:
		return "IMPROVED (fewer dead links)"
	case trendWorsened:
		return "WORSENED (more dead links)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
