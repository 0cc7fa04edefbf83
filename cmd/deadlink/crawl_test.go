package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/deadlink/internal/config"
	"github.com/nao1215/deadlink/internal/database"
	"github.com/nao1215/deadlink/internal/model"
	"github.com/nao1215/deadlink/internal/report"
	"github.com/nao1215/deadlink/internal/tor"
)

// emptyConfigFile writes an empty configuration file so tests never pick up
// a .deadlink from the working or home directory.
func emptyConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".deadlink")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// newDeadLinkServer serves a root page linking to one live and one missing page.
func newDeadLinkServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><a href="/ok">ok</a><a href="/missing">missing</a></body></html>`)
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><a href="/">home</a></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"list", "l", ""},
		{"target", "", ""},
		{"exclude", "", "[]"},
		{"config", "c", ""},
		{"timeout", "t", config.DefaultTimeout.String()},
		{"retries", "", fmt.Sprint(config.DefaultMaxAttempts - 1)},
		{"retry-delay", "", config.DefaultRetryBaseDelay.String()},
		{"workers", "w", fmt.Sprint(config.DefaultWorkers)},
		{"batch", "b", fmt.Sprint(config.DefaultBatchSize)},
		{"depth", "d", "0"},
		{"max-pages", "p", "0"},
		{"rate", "", "0"},
		{"check-external", "", "false"},
		{"render", "", "false"},
		{"no-robots", "", "false"},
		{"user-agent", "", config.DefaultUserAgent},
		{"json", "j", "false"},
		{"markdown", "m", "false"},
		{"output", "o", ""},
		{"fail-on-dead", "", "true"},
		{"save", "", "true"},
		{"tor", "", "false"},
		{"external-tor", "", "false"},
		{"tor-proxy", "", config.DefaultTorProxyAddress},
		{"metrics-addr", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--config", emptyConfigFile(t)}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "https://example.com" {
			t.Errorf("Seeds = %v", cfg.Seeds)
		}
		if cfg.MaxAttempts != config.DefaultMaxAttempts {
			t.Errorf("MaxAttempts = %d, want %d", cfg.MaxAttempts, config.DefaultMaxAttempts)
		}
		if !cfg.RespectRobots {
			t.Error("robots.txt must be respected by default")
		}
		if !cfg.FailOnDead || !cfg.SaveToDB {
			t.Error("expected --fail-on-dead and --save to default to true")
		}
		if cfg.SiteConfigs == nil {
			t.Error("expected non-nil site configs")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("default config should be valid: %v", err)
		}
	})

	t.Run("flags are applied", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		err := cmd.ParseFlags([]string{
			"--config", emptyConfigFile(t),
			"--target", "https://example.com/docs",
			"--exclude", "/docs/api",
			"--exclude", "/docs/old",
			"--retries", "0",
			"--retry-delay", "10ms",
			"--workers", "3",
			"--depth", "2",
			"--max-pages", "50",
			"--rate", "1.5",
			"--no-robots",
			"--json",
			"--save=false",
		})
		if err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com/docs"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Target != "https://example.com/docs" {
			t.Errorf("Target = %q", cfg.Target)
		}
		if len(cfg.Exclude) != 2 {
			t.Errorf("Exclude = %v", cfg.Exclude)
		}
		if cfg.MaxAttempts != 1 {
			t.Errorf("MaxAttempts = %d, want 1", cfg.MaxAttempts)
		}
		if cfg.RetryBaseDelay != 10*time.Millisecond {
			t.Errorf("RetryBaseDelay = %v", cfg.RetryBaseDelay)
		}
		if cfg.Workers != 3 || cfg.MaxDepth != 2 || cfg.MaxPages != 50 {
			t.Errorf("Workers/MaxDepth/MaxPages = %d/%d/%d", cfg.Workers, cfg.MaxDepth, cfg.MaxPages)
		}
		if cfg.RequestsPerSecond != 1.5 {
			t.Errorf("RequestsPerSecond = %v", cfg.RequestsPerSecond)
		}
		if cfg.RespectRobots {
			t.Error("expected --no-robots to disable robots.txt")
		}
		if !cfg.JSONReport || cfg.SaveToDB {
			t.Error("expected JSON report without saving")
		}
	})

	t.Run("seed list is appended to arguments", func(t *testing.T) {
		t.Parallel()

		list := filepath.Join(t.TempDir(), "seeds.txt")
		content := "# sites\nhttps://a.example.com\n\n  https://b.example.com  \n"
		if err := os.WriteFile(list, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--config", emptyConfigFile(t), "--list", list}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"https://example.com", "https://a.example.com", "https://b.example.com"}
		if strings.Join(cfg.Seeds, " ") != strings.Join(want, " ") {
			t.Errorf("Seeds = %v, want %v", cfg.Seeds, want)
		}
	})

	t.Run("missing config file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"--config", missing}); err != nil {
			t.Fatal(err)
		}
		if _, err := buildConfig(cmd, []string{"https://example.com"}); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestReadSeedList(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		if _, err := readSeedList(filepath.Join(t.TempDir(), "none.txt")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("comments only", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "seeds.txt")
		if err := os.WriteFile(path, []byte("# nothing\n\n"), 0600); err != nil {
			t.Fatal(err)
		}
		seeds, err := readSeedList(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seeds) != 0 {
			t.Errorf("expected no seeds, got %v", seeds)
		}
	})
}

func TestCheckSeeds(t *testing.T) {
	t.Parallel()

	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := tor.AddressFromPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	onion := "http://" + addr

	tests := []struct {
		name    string
		seeds   []string
		useTor  bool
		wantErr bool
	}{
		{"clearnet without tor", []string{"https://example.com"}, false, false},
		{"onion without tor", []string{onion}, false, true},
		{"onion with tor", []string{onion}, true, false},
		{"invalid onion with tor", []string{"http://short.onion"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.NewConfig()
			cfg.Seeds = tt.seeds
			cfg.UseTor = tt.useTor
			err := checkSeeds(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkSeeds() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrawlOutcome(t *testing.T) {
	t.Parallel()

	withDead := func(seed string) *model.Job {
		job := model.NewJob(seed)
		job.Report = &model.Report{Seed: seed, DeadURLs: []model.DeadLink{{URL: seed + "/gone"}}}
		return job
	}
	clean := func(seed string) *model.Job {
		job := model.NewJob(seed)
		job.Report = &model.Report{Seed: seed, DeadURLs: []model.DeadLink{}}
		return job
	}

	t.Run("clean crawl", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		if err := crawlOutcome(cfg, []*model.Job{clean("https://a.com")}, &bytes.Buffer{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("dead links fail by default", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.FailOnDead = true
		err := crawlOutcome(cfg, []*model.Job{withDead("https://a.com")}, &bytes.Buffer{})
		if !errors.Is(err, errDeadLinksFound) {
			t.Errorf("expected errDeadLinksFound, got %v", err)
		}
	})

	t.Run("dead links tolerated", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.FailOnDead = false
		if err := crawlOutcome(cfg, []*model.Job{withDead("https://a.com")}, &bytes.Buffer{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("failed seed takes precedence", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.FailOnDead = true
		failed := clean("https://b.com")
		failed.Err = errors.New("seed unreachable")

		var stderr bytes.Buffer
		err := crawlOutcome(cfg, []*model.Job{withDead("https://a.com"), failed}, &stderr)
		if err == nil || errors.Is(err, errDeadLinksFound) {
			t.Fatalf("expected seed failure, got %v", err)
		}
		if !strings.Contains(err.Error(), "1 of 2 seeds") {
			t.Errorf("unexpected error message: %v", err)
		}
		if !strings.Contains(stderr.String(), "https://b.com") {
			t.Errorf("expected failed seed on stderr, got %q", stderr.String())
		}
	})
}

// TestCrawlCommand runs the whole command against a local site.
// It is not parallel because the command replaces the default logger.
func TestCrawlCommand(t *testing.T) {
	t.Run("json report and stored run", func(t *testing.T) {
		srv := newDeadLinkServer(t)
		dbDir := t.TempDir()

		var stdout, stderr bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&stdout)
		root.SetErr(&stderr)
		root.SetArgs([]string{
			"crawl",
			"--config", emptyConfigFile(t),
			"--db-dir", dbDir,
			"--retry-delay", "1ms",
			"--json",
			srv.URL,
		})

		err := root.Execute()
		if !errors.Is(err, errDeadLinksFound) {
			t.Fatalf("expected errDeadLinksFound, got %v (stderr: %s)", err, stderr.String())
		}

		var out report.JSONReport
		if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
			t.Fatalf("invalid JSON output: %v\n%s", err, stdout.String())
		}
		if out.Report == nil {
			t.Fatal("expected report in JSON output")
		}
		if out.Report.Summary.PagesVisited != 3 {
			t.Errorf("PagesVisited = %d, want 3", out.Report.Summary.PagesVisited)
		}
		if len(out.Report.DeadURLs) != 1 || out.Report.DeadURLs[0].URL != srv.URL+"/missing" {
			t.Errorf("DeadURLs = %+v", out.Report.DeadURLs)
		}

		db, err := database.Open(dbDir, database.Options{})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		seeds, err := db.ListSeeds(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if len(seeds) != 1 {
			t.Errorf("expected one stored seed, got %v", seeds)
		}
	})

	t.Run("markdown report to file", func(t *testing.T) {
		srv := newDeadLinkServer(t)
		reportPath := filepath.Join(t.TempDir(), "out", "report.md")

		root := NewRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{
			"crawl",
			"--config", emptyConfigFile(t),
			"--save=false",
			"--fail-on-dead=false",
			"--retry-delay", "1ms",
			"--markdown",
			"-o", reportPath,
			srv.URL,
		})

		if err := root.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("expected report file: %v", err)
		}
		if !strings.Contains(string(content), srv.URL+"/missing") {
			t.Errorf("expected dead link in Markdown report:\n%s", content)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		root := NewRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{
			"crawl",
			"--config", emptyConfigFile(t),
			"--json", "--markdown",
			"https://example.com",
		})

		err := root.Execute()
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("no seeds", func(t *testing.T) {
		root := NewRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"crawl", "--config", emptyConfigFile(t)})

		if err := root.Execute(); !errors.Is(err, config.ErrNoTarget) {
			t.Errorf("expected ErrNoTarget, got %v", err)
		}
	})
}
