package llm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xhad/ackaudit/internal/models"
)

// RateLimitError is returned when a provider answers with HTTP 429.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %q rate limited", e.Provider)
}

func (e *RateLimitError) Is(target error) bool {
	return target == models.ErrRateLimited
}

type probeKey struct{}

// quotaProbe records whether any request made under a context hit a 429.
type quotaProbe struct {
	limited    bool
	retryAfter time.Duration
}

func withProbe(ctx context.Context) (context.Context, *quotaProbe) {
	p := &quotaProbe{}
	return context.WithValue(ctx, probeKey{}, p), p
}

// quotaTransport turns 429 responses into a RateLimitError so that provider clients fail
// with a typed error instead of a status string.
type quotaTransport struct {
	provider string
	base     http.RoundTripper
}

func newQuotaClient(provider string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &quotaTransport{provider: provider, base: http.DefaultTransport},
	}
}

func (t *quotaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}
	resp.Body.Close()

	rle := &RateLimitError{Provider: t.provider, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	if p, ok := req.Context().Value(probeKey{}).(*quotaProbe); ok {
		p.limited = true
		p.retryAfter = rle.RetryAfter
	}
	return nil, rle
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
