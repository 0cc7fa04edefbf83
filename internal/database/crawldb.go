package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/deadlink/internal/model"
)

// FileName is the name of the SQLite database inside the database directory.
const FileName = "deadlink.db"

// ErrRunNotFound is returned when a run ID or seed has no stored run.
var ErrRunNotFound = errors.New("run not found")

// CrawlDB provides SQLite-based storage of crawl runs.
//
// Design decision: Each run is stored twice, as the full report JSON and as
// one row per dead URL and per dead reference, because:
//  1. Reports can be re-rendered exactly as they were produced
//  2. Dead links can be queried and diffed without decoding JSON
//  3. The report schema can evolve without a table migration
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB inside dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl with --save first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	// A compare may run while a crawl is writing, so wait for locks.
	dsn := dbPath + "?mode=rw&_pragma=busy_timeout(5000)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl of a seed
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		target TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		pages_visited INTEGER NOT NULL DEFAULT 0,
		dead_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Every URL a run classified dead
	CREATE TABLE IF NOT EXISTS dead_urls (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		status_code INTEGER,
		error TEXT,
		external INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, url)
	);

	-- Pages that link to a dead URL
	CREATE TABLE IF NOT EXISTS dead_references (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		page_url TEXT NOT NULL,
		link_url TEXT NOT NULL,
		PRIMARY KEY (run_id, page_url, link_url)
	);

	CREATE INDEX IF NOT EXISTS idx_refs_link ON dead_references(run_id, link_url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata summarizes a stored run without loading its report.
type RunMetadata struct {
	ID           int64
	Seed         string
	Target       string
	StartedAt    time.Time
	FinishedAt   time.Time
	PagesVisited int
	DeadCount    int
	Error        string
}

// DeadURLRecord is a stored dead URL together with the pages linking to it.
type DeadURLRecord struct {
	URL        string
	Kind       model.FailureKind
	StatusCode int
	Error      string
	External   bool
	// ReferencedBy lists the pages linking to URL, sorted.
	ReferencedBy []string
}

// SaveCrawl stores a report in one transaction and returns the run ID.
func (cdb *CrawlDB) SaveCrawl(ctx context.Context, report *model.Report) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // Rollback after Commit is a no-op

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (seed, target, started_at, finished_at, pages_visited, dead_count, error, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Seed,
		report.Target,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Summary.PagesVisited,
		len(report.DeadURLs),
		report.Error,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for _, d := range report.DeadURLs {
		if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO dead_urls (run_id, url, kind, status_code, error, external)
		VALUES (?, ?, ?, ?, ?, ?)
		`, runID, d.URL, d.Kind.String(), d.StatusCode, d.Error, d.External); err != nil {
			return 0, fmt.Errorf("failed to insert dead url: %w", err)
		}
	}

	for _, page := range report.DeadLinks {
		for _, link := range page.Links {
			if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO dead_references (run_id, page_url, link_url)
			VALUES (?, ?, ?)
			`, runID, page.Page, link.URL); err != nil {
				return 0, fmt.Errorf("failed to insert dead reference: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// GetRunByID returns the stored report of a run.
// It returns ErrRunNotFound if no such run exists.
func (cdb *CrawlDB) GetRunByID(ctx context.Context, id int64) (*model.Report, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeReport(reportJSON)
}

// GetLatestRun returns the most recent report for seed together with its ID.
// It returns ErrRunNotFound if the seed was never stored.
func (cdb *CrawlDB) GetLatestRun(ctx context.Context, seed string) (int64, *model.Report, error) {
	var (
		id         int64
		reportJSON string
	)
	err := cdb.db.QueryRowContext(ctx, `
	SELECT id, report_json FROM runs
	WHERE seed = ?
	ORDER BY started_at DESC, id DESC
	LIMIT 1
	`, seed).Scan(&id, &reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("%w: %s", ErrRunNotFound, seed)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	report, err := decodeReport(reportJSON)
	if err != nil {
		return 0, nil, err
	}
	return id, report, nil
}

// GetRunHistory returns the runs of seed, newest first.
func (cdb *CrawlDB) GetRunHistory(ctx context.Context, seed string) ([]RunMetadata, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT id, seed, target, started_at, finished_at, pages_visited, dead_count, error
	FROM runs
	WHERE seed = ?
	ORDER BY started_at DESC, id DESC
	`, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta              RunMetadata
			started, finished string
			runErr            sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.Seed, &meta.Target, &started, &finished,
			&meta.PagesVisited, &meta.DeadCount, &runErr); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished)
		meta.Error = runErr.String
		results = append(results, meta)
	}
	return results, rows.Err()
}

// ListSeeds returns every seed with at least one stored run, sorted.
func (cdb *CrawlDB) ListSeeds(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT seed FROM runs ORDER BY seed`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []string
	for rows.Next() {
		var seed string
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("failed to scan seed: %w", err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, rows.Err()
}

// GetDeadLinks returns the dead URLs of a run, sorted by URL, each with the
// pages that link to it.
func (cdb *CrawlDB) GetDeadLinks(ctx context.Context, runID int64) ([]DeadURLRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT d.url, d.kind, d.status_code, d.error, d.external, r.page_url
	FROM dead_urls d
	LEFT JOIN dead_references r ON r.run_id = d.run_id AND r.link_url = d.url
	WHERE d.run_id = ?
	ORDER BY d.url, r.page_url
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dead links: %w", err)
	}
	defer rows.Close()

	var records []DeadURLRecord
	for rows.Next() {
		var (
			url, kind  string
			statusCode sql.NullInt64
			errText    sql.NullString
			external   bool
			page       sql.NullString
		)
		if err := rows.Scan(&url, &kind, &statusCode, &errText, &external, &page); err != nil {
			return nil, fmt.Errorf("failed to scan dead link: %w", err)
		}

		if n := len(records); n == 0 || records[n-1].URL != url {
			parsedKind, err := model.ParseFailureKind(kind)
			if err != nil {
				parsedKind = model.FailureNetwork
			}
			records = append(records, DeadURLRecord{
				URL:          url,
				Kind:         parsedKind,
				StatusCode:   int(statusCode.Int64),
				Error:        errText.String,
				External:     external,
				ReferencedBy: []string{},
			})
		}
		if page.Valid {
			last := &records[len(records)-1]
			last.ReferencedBy = append(last.ReferencedBy, page.String)
		}
	}
	return records, rows.Err()
}

// DeleteRun removes a run and its dead link rows.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id int64) error {
	result, err := cdb.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", ErrRunNotFound, id)
	}
	return nil
}

func decodeReport(reportJSON string) (*model.Report, error) {
	var report model.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// formatTimestamp stores times in UTC with sub-second precision so that
// runs started within the same second still sort correctly.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampLayout has a fixed-width fraction so stored values sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
