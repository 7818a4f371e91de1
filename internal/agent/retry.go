package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/apexion-ai/parley/internal/provider"
)

// RetryPolicy bounds how a turn retries a reply that failed before any text
// arrived. Waits grow from Base by doubling up to Cap, then vary by Jitter
// (a fraction of the wait, either way).
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
	Jitter     float64
}

// DefaultRetryPolicy is used when a turn does not carry its own.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	Base:       2 * time.Second,
	Cap:        30 * time.Second,
	Jitter:     0.3,
}

// Delay returns the wait before retry n (0 is the first retry).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.Base
	for i := 0; i < n && d < p.Cap; i++ {
		d *= 2
	}
	d = min(d, p.Cap)
	spread := int64(float64(d) * p.Jitter)
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(2*spread+1)-spread)
}

// Notice is the line shown to the user before retry n waits for delay.
func (p RetryPolicy) Notice(n int, delay time.Duration, cause error) string {
	reason := cause.Error()
	if len(reason) > 80 {
		reason = reason[:80] + "..."
	}
	return fmt.Sprintf("Retrying (%d/%d) in %s... (%s)", n+1, p.MaxRetries, delay.Round(time.Millisecond), reason)
}

// transientMarkers are error text fragments of failures that usually clear
// up on their own: throttling, overload, gateway trouble, dropped sockets.
var transientMarkers = []string{
	"429", "rate limit", "rate_limit",
	"529", "overloaded",
	"500", "502", "503", "504",
	"connection refused", "connection reset", "timeout", "EOF", "temporary failure",
}

// isRetryableError reports whether err is worth another attempt. A status
// code from the provider decides when there is one; otherwise the message
// text is matched.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if code := provider.StatusCode(err); code != 0 {
		return code == 429 || code >= 500
	}
	msg := err.Error()
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
