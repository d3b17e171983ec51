package fetch

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls when a request is repeated once after a response.
type RetryPolicy struct {
	// Retry429 waits Retry-After (capped at Max429Wait) on 429 and retries once.
	Retry429   bool
	Max429Wait time.Duration
	// Retry5xx waits Backoff5xx on 5xx and retries once.
	Retry5xx   bool
	Backoff5xx time.Duration
}

// DefaultRetryPolicy retries 429 and 5xx answers once.
var DefaultRetryPolicy = RetryPolicy{
	Retry429:   true,
	Max429Wait: 5 * time.Second,
	Retry5xx:   true,
	Backoff5xx: 500 * time.Millisecond,
}

// doWithRetry performs req and retries it once on 429/5xx when the policy
// allows. Other 4xx are returned as they are. The caller closes resp.Body.
func doWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	var wait time.Duration
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests && policy.Retry429:
		wait = parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait)
	case code >= 500 && policy.Retry5xx:
		wait = policy.Backoff5xx
	default:
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}

	retry, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	retry.Header = req.Header.Clone()
	return client.Do(retry)
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date) capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		return min(time.Duration(sec)*time.Second, max)
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	return min(until, max)
}
