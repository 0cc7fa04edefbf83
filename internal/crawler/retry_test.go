package crawler

import (
	"testing"
	"time"

	"github.com/nao1215/deadlink/internal/model"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()

	tests := []struct {
		name    string
		kind    model.FailureKind
		attempt int
		want    bool
	}{
		{name: "aborted first attempt", kind: model.FailureAborted, attempt: 1, want: true},
		{name: "aborted second attempt", kind: model.FailureAborted, attempt: 2, want: true},
		{name: "aborted budget exhausted", kind: model.FailureAborted, attempt: 3, want: false},
		{name: "timeout is terminal", kind: model.FailureTimeout, attempt: 1, want: false},
		{name: "network error is terminal", kind: model.FailureNetwork, attempt: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.ShouldRetry(tt.kind, tt.attempt); got != tt.want {
				t.Errorf("ShouldRetry(%v, %d) = %v, expected %v", tt.kind, tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetryPolicyBackoffDelay(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}

	for attempt, want := range map[int]time.Duration{
		0: 0,
		1: 500 * time.Millisecond,
		2: time.Second,
		3: 1500 * time.Millisecond,
	} {
		if got := p.BackoffDelay(attempt); got != want {
			t.Errorf("BackoffDelay(%d) = %v, expected %v", attempt, got, want)
		}
	}

	if got := (RetryPolicy{}).BackoffDelay(2); got != 0 {
		t.Errorf("zero base delay should not pause, got %v", got)
	}
}

func TestRetryPolicyMinimumBudget(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 0}
	if p.ShouldRetry(model.FailureAborted, 1) {
		t.Error("a zero budget still allows exactly one attempt")
	}
}
