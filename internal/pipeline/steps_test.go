package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/deadlink/internal/config"
	"github.com/nao1215/deadlink/internal/crawler"
	"github.com/nao1215/deadlink/internal/database"
	"github.com/nao1215/deadlink/internal/metrics"
	"github.com/nao1215/deadlink/internal/model"
)

// testConfig returns a configuration that crawls without pauses.
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.Timeout = 5 * time.Second
	cfg.DBDir = ""
	return cfg
}

// newSiteServer serves a small site:
//
//	/          -> /docs, /missing, /private, https://external.example
//	/docs      -> /
//	/missing   -> 404
//	/private   -> disallowed by robots.txt
func newSiteServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()

	var hits sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Store(r.URL.Path, true)
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body>
				<a href="/docs">docs</a>
				<a href="/missing">missing</a>
				<a href="/private">private</a>
				<a href="https://external.example/page">external</a>
			</body></html>`)
		case "/docs":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><a href="/">home</a></body></html>`)
		case "/private":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("crawls the site and honours robots.txt", func(t *testing.T) {
		t.Parallel()

		srv, hits := newSiteServer(t)
		collector := metrics.NewCollector()

		step := NewCrawlStep(testConfig(), WithCrawlMetrics(collector))
		if step.Name() != "crawl" {
			t.Errorf("Name() = %q, want crawl", step.Name())
		}

		job := model.NewJob(srv.URL)
		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Result == nil {
			t.Fatal("expected crawl result")
		}

		dead := job.Result.DeadURLs()
		if len(dead) != 1 || dead[0] != srv.URL+"/missing" {
			t.Errorf("dead URLs = %v, want [%s/missing]", dead, srv.URL)
		}
		if _, ok := job.Result.Page(srv.URL + "/docs"); !ok {
			t.Error("expected /docs to be visited")
		}
		if _, ok := hits.Load("/private"); ok {
			t.Error("/private is disallowed by robots.txt and must not be fetched")
		}
		if p, ok := job.Result.Page("https://external.example/page"); ok && p.Status != model.StatusExternalUnvisited {
			t.Errorf("external link status = %v, want EXTERNAL_UNVISITED", p.Status)
		}
	})

	t.Run("robots.txt is ignored when disabled", func(t *testing.T) {
		t.Parallel()

		srv, hits := newSiteServer(t)
		cfg := testConfig()
		cfg.RespectRobots = false

		job := model.NewJob(srv.URL)
		if err := NewCrawlStep(cfg).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := hits.Load("/private"); !ok {
			t.Error("expected /private to be fetched")
		}
		if _, ok := hits.Load("/robots.txt"); ok {
			t.Error("robots.txt must not be fetched when disabled")
		}
	})

	t.Run("site config excludes prefixes", func(t *testing.T) {
		t.Parallel()

		srv, hits := newSiteServer(t)
		cfg := testConfig()
		cfg.RespectRobots = false
		cfg.SiteConfigs = &config.File{
			Sites: map[string]config.SiteConfig{
				crawler.HostOf(srv.URL): {Exclude: []string{"/docs"}},
			},
		}

		job := model.NewJob(srv.URL)
		if err := NewCrawlStep(cfg).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := hits.Load("/docs"); ok {
			t.Error("/docs is excluded and must not be fetched")
		}
	})

	t.Run("unreachable seed keeps the partial result", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RespectRobots = false
		cfg.MaxAttempts = 1

		dead := crawler.PageLoaderFunc(func(context.Context, string, time.Duration) (*model.PageContent, error) {
			return nil, &model.LoadError{Kind: model.FailureNetwork, StatusCode: http.StatusNotFound}
		})

		job := model.NewJob("https://site.test")
		err := NewCrawlStep(cfg, WithCrawlLoader(dead)).Do(context.Background(), job)
		if !errors.Is(err, crawler.ErrSeedUnreachable) {
			t.Fatalf("expected ErrSeedUnreachable, got %v", err)
		}
		if job.Result == nil {
			t.Fatal("expected partial result")
		}
	})

	t.Run("invalid seed yields no result", func(t *testing.T) {
		t.Parallel()

		job := model.NewJob("mailto:someone@example.com")
		err := NewCrawlStep(testConfig()).Do(context.Background(), job)
		if !errors.Is(err, crawler.ErrInvalidSeed) {
			t.Fatalf("expected ErrInvalidSeed, got %v", err)
		}
		if job.Result != nil {
			t.Error("expected nil result")
		}
	})
}

func TestReportStep(t *testing.T) {
	t.Parallel()

	t.Run("builds the report from the result", func(t *testing.T) {
		t.Parallel()

		result := model.NewCrawlResult("https://site.com", "https://site.com")
		result.Record(&model.PageResult{
			URL:           "https://site.com",
			Status:        model.StatusOK,
			OutboundLinks: []model.Link{model.NewLink("https://site.com/gone")},
		})
		result.Record(&model.PageResult{
			URL:     "https://site.com/gone",
			Status:  model.StatusDead,
			Failure: model.FailureNetwork,
		})
		result.Finish()

		job := model.NewJob("https://site.com")
		job.Result = result

		step := NewReportStep()
		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Report == nil {
			t.Fatal("expected report")
		}
		if !job.Report.HasDeadLinks() {
			t.Error("expected dead links in report")
		}
		if job.Report.Error != "" {
			t.Errorf("Error = %q, want empty", job.Report.Error)
		}
	})

	t.Run("copies the crawl error", func(t *testing.T) {
		t.Parallel()

		job := model.NewJob("https://site.com")
		job.Err = crawler.ErrSeedUnreachable

		if err := NewReportStep().Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Report == nil || job.Report.Seed != "https://site.com" {
			t.Fatalf("expected an empty report for the seed, got %+v", job.Report)
		}
		if job.Report.Error != crawler.ErrSeedUnreachable.Error() {
			t.Errorf("Error = %q", job.Report.Error)
		}
	})

	t.Run("fails without result or error", func(t *testing.T) {
		t.Parallel()

		err := NewReportStep().Do(context.Background(), model.NewJob("https://site.com"))
		if !errors.Is(err, ErrNoCrawlResult) {
			t.Errorf("expected ErrNoCrawlResult, got %v", err)
		}
	})
}

// fakeStore records saved reports.
type fakeStore struct {
	saved []*model.Report
	err   error
}

func (f *fakeStore) SaveCrawl(_ context.Context, r *model.Report) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, r)
	return int64(len(f.saved)), nil
}

func TestPersistStep(t *testing.T) {
	t.Parallel()

	t.Run("saves the report and records the run id", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		step := newPersistStep(store, nil)

		job := model.NewJob("https://site.com")
		job.Report = &model.Report{Seed: "https://site.com"}
		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.RunID != 1 {
			t.Errorf("RunID = %d, want 1", job.RunID)
		}
		if len(store.saved) != 1 {
			t.Errorf("expected 1 saved report, got %d", len(store.saved))
		}
	})

	t.Run("requires a report", func(t *testing.T) {
		t.Parallel()

		err := newPersistStep(&fakeStore{}, nil).Do(context.Background(), model.NewJob("https://site.com"))
		if !errors.Is(err, ErrNoCrawlResult) {
			t.Errorf("expected ErrNoCrawlResult, got %v", err)
		}
	})

	t.Run("wraps store errors", func(t *testing.T) {
		t.Parallel()

		errDisk := errors.New("disk full")
		job := model.NewJob("https://site.com")
		job.Report = &model.Report{Seed: "https://site.com"}

		err := newPersistStep(&fakeStore{err: errDisk}, nil).Do(context.Background(), job)
		if !errors.Is(err, errDisk) {
			t.Errorf("expected errDisk, got %v", err)
		}
	})
}

func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("without database", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(testConfig(), nil)
		names := p.StepNames()
		if len(names) != 2 || names[0] != "crawl" || names[1] != "report" {
			t.Errorf("unexpected steps: %v", names)
		}
	})

	t.Run("end to end with database", func(t *testing.T) {
		t.Parallel()

		srv, _ := newSiteServer(t)
		dir := t.TempDir()
		db, err := database.Open(dir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		var visited []string
		listener := crawler.ListenerFunc(func(p *model.PageResult) {
			visited = append(visited, p.URL)
		})

		p := DefaultPipeline(testConfig(), nil,
			WithPipelineDB(db),
			WithPipelineListener(listener),
			WithPipelineHostLimiter(crawler.NewHostLimiter(0, 0)),
		)
		if got := p.StepNames(); len(got) != 3 || got[2] != "persist" {
			t.Fatalf("unexpected steps: %v", got)
		}

		job := model.NewJob(srv.URL)
		if err := p.Execute(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Err != nil {
			t.Fatalf("job.Err = %v", job.Err)
		}
		if job.RunID == 0 {
			t.Fatal("expected run to be saved")
		}
		if len(visited) == 0 {
			t.Error("expected listener notifications")
		}

		records, err := db.GetDeadLinks(context.Background(), job.RunID)
		if err != nil {
			t.Fatalf("GetDeadLinks: %v", err)
		}
		if len(records) != 1 || records[0].URL != srv.URL+"/missing" {
			t.Errorf("unexpected dead links: %+v", records)
		}
	})

	t.Run("unreachable seed is still reported and stored", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		cfg := testConfig()
		cfg.RespectRobots = false
		cfg.MaxAttempts = 1
		dead := crawler.PageLoaderFunc(func(context.Context, string, time.Duration) (*model.PageContent, error) {
			return nil, &model.LoadError{Kind: model.FailureNetwork, StatusCode: http.StatusInternalServerError}
		})

		job := model.NewJob("https://site.test")
		p := DefaultPipeline(cfg, nil, WithPipelineLoader(dead), WithPipelineDB(db))
		if err := p.Execute(context.Background(), job); err != nil {
			t.Fatalf("continue-on-error pipeline returned %v", err)
		}
		if !errors.Is(job.Err, crawler.ErrSeedUnreachable) {
			t.Errorf("job.Err = %v, want ErrSeedUnreachable", job.Err)
		}
		if job.Report == nil || job.Report.Error == "" {
			t.Error("expected report carrying the error")
		}
		if job.RunID == 0 {
			t.Error("expected failed run to be stored")
		}
	})
}
