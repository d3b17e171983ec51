// Package fetch loads manifests, clock resources and xlink payloads over
// HTTP for the resolution driver.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultRate            = 20
	DefaultBurst           = 10
	DefaultHostConcurrency = 4
	DefaultMaxBodyBytes    = 16 << 20
)

var (
	ErrUnsupportedScheme = errors.New("fetch: only http and https URLs are fetched")
	ErrBodyTooLarge      = errors.New("fetch: response body too large")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: unexpected status %d", e.URL, e.Code)
}

// Clock timestamps requests on the same monotonic scale the resolver uses.
type Clock interface {
	Monotonic() time.Duration
}

// Config tunes a Fetcher. Zero values select the defaults.
type Config struct {
	Timeout         time.Duration
	Rate            float64
	Burst           int
	HostConcurrency int
	MaxBodyBytes    int64
	Retry           *RetryPolicy
}

// Response is a fetched document with the monotonic times at which the
// request was sent and the response fully received.
type Response struct {
	Body       []byte
	URL        string
	SentAt     time.Duration
	ReceivedAt time.Duration
}

// Fetcher performs rate-limited GETs with a per-host concurrency cap.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	sem     *hostSemaphore
	retry   RetryPolicy
	maxBody int64
	clock   Clock
}

// New returns a Fetcher using clock for timestamps.
func New(cfg Config, clock Clock) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.HostConcurrency <= 0 {
		cfg.HostConcurrency = DefaultHostConcurrency
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	retry := DefaultRetryPolicy
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	// Token-protected CDNs hand out session cookies with the manifest that
	// xlink and clock requests to the same site must present.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  true,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		sem:     newHostSemaphore(cfg.HostConcurrency),
		retry:   retry,
		maxBody: cfg.MaxBodyBytes,
		clock:   clock,
	}
}

// IsHTTPOrHTTPS reports whether raw is a URL with scheme http or https.
func IsHTTPOrHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Get fetches raw and returns its decoded body.
func (f *Fetcher) Get(ctx context.Context, raw string) (*Response, error) {
	u, err := url.Parse(raw)
	if err != nil || !IsHTTPOrHTTPS(raw) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	release, err := f.sem.acquire(ctx, u)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "br, gzip")

	sent := f.clock.Monotonic()
	resp, err := doWithRetry(ctx, f.client, req, f.retry)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: raw, Code: resp.StatusCode}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s: %w", raw, err)
	}
	return &Response{
		Body:       body,
		URL:        resp.Request.URL.String(),
		SentAt:     sent,
		ReceivedAt: f.clock.Monotonic(),
	}, nil
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "br":
		r = brotli.NewReader(r)
	case "gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}

	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBody {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
