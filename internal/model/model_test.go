package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStatusString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "OK"},
		{StatusDead, "DEAD"},
		{StatusExternalUnvisited, "EXTERNAL-UNVISITED"},
		{Status(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.status.String(); got != tt.want {
				t.Errorf("got %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestParseFailureKind(t *testing.T) {
	t.Parallel()

	for _, kind := range AllFailureKinds() {
		got, err := ParseFailureKind(kind.String())
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", kind, err)
		}
		if got != kind {
			t.Errorf("got %v, expected %v", got, kind)
		}
	}

	if _, err := ParseFailureKind("BOGUS"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLoadError(t *testing.T) {
	t.Parallel()

	t.Run("kind is extracted through wrapping", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection reset by peer")
		err := fmt.Errorf("load failed: %w", NewLoadError(FailureAborted, cause))

		if got := KindOf(err); got != FailureAborted {
			t.Errorf("got %v, expected ABORTED", got)
		}
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
	})

	t.Run("plain errors are network errors", func(t *testing.T) {
		t.Parallel()

		if got := KindOf(errors.New("boom")); got != FailureNetwork {
			t.Errorf("got %v, expected OTHER_NETWORK_ERROR", got)
		}
		if got := KindOf(nil); got != FailureNone {
			t.Errorf("got %v, expected NONE", got)
		}
	})

	t.Run("status code is part of the message", func(t *testing.T) {
		t.Parallel()

		err := &LoadError{Kind: FailureNetwork, StatusCode: 404}
		if !strings.Contains(err.Error(), "404") {
			t.Errorf("expected status code in %q", err.Error())
		}
		if StatusCodeOf(err) != 404 {
			t.Errorf("got %d, expected 404", StatusCodeOf(err))
		}
	})
}

func TestLinkSet(t *testing.T) {
	t.Parallel()

	var s LinkSet
	if !s.Add(NewLink("https://site.com/a")) {
		t.Fatal("expected first add to succeed")
	}
	if s.Add(NewLink("https://site.com/a")) {
		t.Error("expected duplicate add to fail")
	}
	s.Add(NewLink("https://site.com/b"))

	links := s.Links()
	if len(links) != 2 {
		t.Fatalf("got %d links, expected 2", len(links))
	}
	if links[0].URL() != "https://site.com/a" || links[1].URL() != "https://site.com/b" {
		t.Errorf("unexpected order: %v", links)
	}
	if !s.Contains(NewLink("https://site.com/b")) {
		t.Error("expected set to contain b")
	}
	if got := links[0].Host(); got != "site.com" {
		t.Errorf("got host %q, expected site.com", got)
	}
}

func newTestResult() *CrawlResult {
	r := NewCrawlResult("https://site.com", "https://site.com")
	r.Record(&PageResult{
		URL:    "https://site.com",
		Status: StatusOK,
		OutboundLinks: []Link{
			NewLink("https://site.com/a"),
			NewLink("https://site.com/missing"),
			NewLink("https://other.com/x"),
		},
	})
	r.Record(&PageResult{
		URL:           "https://site.com/a",
		Status:        StatusOK,
		OutboundLinks: []Link{NewLink("https://site.com/missing")},
		Depth:         1,
	})
	r.Record(&PageResult{
		URL:        "https://site.com/missing",
		Status:     StatusDead,
		Failure:    FailureNetwork,
		StatusCode: 404,
		Depth:      1,
	})
	r.AddExternal(NewLink("https://other.com/x"))
	r.Finish()
	return r
}

func TestCrawlResult(t *testing.T) {
	t.Parallel()

	t.Run("record is append only", func(t *testing.T) {
		t.Parallel()

		r := newTestResult()
		if r.Record(&PageResult{URL: "https://site.com/a", Status: StatusDead}) {
			t.Error("expected second record of the same URL to be ignored")
		}
		p, ok := r.Page("https://site.com/a")
		if !ok || p.Status != StatusOK {
			t.Errorf("expected original OK result to survive, got %+v", p)
		}
	})

	t.Run("graph holds visited pages only", func(t *testing.T) {
		t.Parallel()

		graph := newTestResult().Graph()
		if len(graph) != 2 {
			t.Fatalf("got %d graph entries, expected 2", len(graph))
		}
		if _, ok := graph["https://site.com/missing"]; ok {
			t.Error("dead page must not have a graph entry")
		}
	})

	t.Run("dead links are grouped by referencing page", func(t *testing.T) {
		t.Parallel()

		groups := newTestResult().DeadLinksByPage()
		if len(groups) != 2 {
			t.Fatalf("got %d groups, expected 2", len(groups))
		}
		for _, g := range groups {
			if len(g.Links) != 1 || g.Links[0].URL() != "https://site.com/missing" {
				t.Errorf("unexpected dead links for %s: %v", g.Page, g.Links)
			}
		}
	})

	t.Run("unchecked externals are unvisited", func(t *testing.T) {
		t.Parallel()

		ext := newTestResult().Externals()
		if len(ext) != 1 {
			t.Fatalf("got %d externals, expected 1", len(ext))
		}
		if ext[0].Status != StatusExternalUnvisited {
			t.Errorf("got %v, expected EXTERNAL-UNVISITED", ext[0].Status)
		}
	})
}

func TestNewReport(t *testing.T) {
	t.Parallel()

	report := NewReport(newTestResult())

	if report.Summary.PagesVisited != 3 {
		t.Errorf("got %d pages visited, expected 3", report.Summary.PagesVisited)
	}
	if report.Summary.PagesDead != 1 {
		t.Errorf("got %d dead pages, expected 1", report.Summary.PagesDead)
	}
	if report.Summary.DeadReferences != 2 {
		t.Errorf("got %d dead references, expected 2", report.Summary.DeadReferences)
	}
	if report.Summary.FailuresByKind[FailureNetwork] != 1 {
		t.Errorf("expected one network failure, got %v", report.Summary.FailuresByKind)
	}
	if !report.HasDeadLinks() {
		t.Error("expected HasDeadLinks to be true")
	}
	if report.DeadURLs[0].StatusCode != 404 {
		t.Errorf("got status %d, expected 404", report.DeadURLs[0].StatusCode)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("failed to marshal report: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"OTHER_NETWORK_ERROR":1`, `"https://site.com/missing"`, `"status":"EXTERNAL-UNVISITED"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in JSON output: %s", want, out)
		}
	}
}

func TestRetryState(t *testing.T) {
	t.Parallel()

	var s RetryState
	s.Record(NewLoadError(FailureAborted, nil))
	s.Record(NewLoadError(FailureTimeout, nil))

	if s.Attempt != 2 {
		t.Errorf("got %d attempts, expected 2", s.Attempt)
	}
	if s.LastKind != FailureTimeout {
		t.Errorf("got %v, expected TIMEOUT", s.LastKind)
	}
}
