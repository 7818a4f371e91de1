package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"rate limit 429", errors.New("status 429 too many requests"), true},
		{"rate_limit", errors.New("rate_limit_exceeded"), true},
		{"overloaded 529", errors.New("529 overloaded"), true},
		{"server 500", errors.New("internal server error 500"), true},
		{"bad gateway 502", errors.New("502 bad gateway"), true},
		{"service unavailable 503", errors.New("503 service unavailable"), true},
		{"gateway timeout 504", errors.New("504 gateway timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("request timeout"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"auth error", errors.New("401 unauthorized"), false},
		{"not found", errors.New("404 not found"), false},
		{"random error", errors.New("something went wrong"), false},
		{"wrapped cancel with timeout text", fmt.Errorf("request timeout: %w", context.Canceled), false},
		{"api 429", &openai.Error{StatusCode: 429}, true},
		{"api 503", &openai.Error{StatusCode: 503}, true},
		{"api 400", &openai.Error{StatusCode: 400}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRetryableError(tt.err)
			if got != tt.expected {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy

	// With jitter, we check rough ranges.
	ranges := []struct {
		n        int
		min, max time.Duration
	}{
		{0, 1400 * time.Millisecond, 2600 * time.Millisecond},
		{1, 2800 * time.Millisecond, 5200 * time.Millisecond},
		{2, 5600 * time.Millisecond, 10400 * time.Millisecond},
		{10, 21 * time.Second, 39 * time.Second},
	}
	for _, r := range ranges {
		if d := p.Delay(r.n); d < r.min || d > r.max {
			t.Errorf("Delay(%d) = %v, want within [%v, %v]", r.n, d, r.min, r.max)
		}
	}
}

func TestRetryPolicyDelayWithoutJitter(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Base: time.Second, Cap: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for n, w := range want {
		if d := p.Delay(n); d != w {
			t.Errorf("Delay(%d) = %v, want %v", n, d, w)
		}
	}
	if d := (RetryPolicy{}).Delay(3); d != 0 {
		t.Errorf("zero policy Delay = %v, want 0", d)
	}
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	start := time.Now()
	err := sleepWithContext(ctx, 10*time.Second)
	elapsed := time.Since(start)

	if err == nil {
		t.Error("expected error from cancelled context")
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("sleep should have returned immediately, took %v", elapsed)
	}
}

func TestRetryPolicyNotice(t *testing.T) {
	long := errors.New(strings.Repeat("x", 100))
	msg := DefaultRetryPolicy.Notice(0, 2*time.Second, long)
	if !strings.HasPrefix(msg, "Retrying (1/3) in 2s...") {
		t.Errorf("unexpected prefix: %q", msg)
	}
	if !strings.HasSuffix(msg, "...)") {
		t.Errorf("long error should be truncated: %q", msg)
	}

	short := RetryPolicy{MaxRetries: 1}.Notice(0, 1500*time.Millisecond, errors.New("503"))
	if short != "Retrying (1/1) in 1.5s... (503)" {
		t.Errorf("Notice = %q", short)
	}
}
