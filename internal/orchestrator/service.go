package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"dash-resolver/internal/baseurl"
	"dash-resolver/internal/bounds"
	"dash-resolver/internal/fetch"
	"dash-resolver/internal/mpdxml"
	"dash-resolver/internal/period"
	"dash-resolver/internal/platform/metrics"
	"dash-resolver/internal/protection"
	"dash-resolver/internal/resolver"
)

var (
	// ErrInvalidURL is returned for a manifest URL that is not http(s).
	ErrInvalidURL = errors.New("invalid manifest URL")

	// ErrUpstream wraps failures to fetch or tokenize the manifest or one of
	// its xlinks.
	ErrUpstream = errors.New("upstream failure")
)

// Fetcher loads documents over the network.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// DefaultResolver wires the resolver to the default collaborators.
func DefaultResolver(opts resolver.Options, log *slog.Logger) *resolver.Resolver {
	if opts.Clock == nil {
		opts.Clock = resolver.SystemClock()
	}
	return resolver.New(opts, resolver.Collaborators{
		Periods:       period.New(opts.Clock, log),
		NewBounds:     bounds.Factory,
		BaseURLs:      baseurl.Resolver{},
		NewProtection: protection.Factory,
	}, log)
}

// Service drives resolution sessions: it fetches what the resolver asks for,
// stores results and keeps dynamic manifests refreshed.
type Service struct {
	repo    Repository
	res     *resolver.Resolver
	fetcher Fetcher
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	watches map[ManifestID]*watch
	wg      sync.WaitGroup
}

type watch struct {
	cancel context.CancelFunc
}

// NewService returns a Service. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewService(repo Repository, res *resolver.Resolver, f Fetcher, log *slog.Logger, m *metrics.Metrics) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:    repo,
		res:     res,
		fetcher: f,
		log:     log,
		metrics: m,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		watches: make(map[ManifestID]*watch),
	}
}

// Get returns the stored entry for id.
func (s *Service) Get(id ManifestID) (*Entry, error) {
	e, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrManifestNotFound
	}
	return e, nil
}

// List returns every stored entry.
func (s *Service) List() []*Entry {
	return s.repo.List()
}

// Resolve fetches the manifest at rawURL, runs a resolution session to
// completion and stores the result. A stored earlier resolution of the same
// URL supplies the previous-manifest hint and its clock offset.
func (s *Service) Resolve(ctx context.Context, rawURL string) (*Entry, error) {
	if !fetch.IsHTTPOrHTTPS(rawURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	entry, err := s.resolve(ctx, rawURL)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncResolutionFailures()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncResolutions()
		s.metrics.AddWarnings(len(entry.Warnings))
	}
	return entry, nil
}

func (s *Service) resolve(ctx context.Context, rawURL string) (*Entry, error) {
	id := NewManifestID(rawURL)
	prev, hasPrev := s.repo.Get(id)

	resp, err := s.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrUpstream, err)
	}
	ir, err := mpdxml.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrUpstream, err)
	}

	received := resp.ReceivedAt
	args := resolver.Args{
		ManifestReceivedTime: &received,
		SourceURL:            resp.URL,
	}
	if hasPrev {
		args.PreviousManifest = prev.Manifest
		args.ExternalClockOffset = prev.Manifest.ClockOffset
	}

	out, err := s.res.Resolve(ir, args)
	if err != nil {
		return nil, err
	}
	done, err := s.drive(ctx, out, resp.URL)
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		ID:         id,
		URL:        rawURL,
		Manifest:   done.Manifest,
		Warnings:   done.Warnings,
		ResolvedAt: s.now().UTC(),
	}
	if hasPrev {
		entry.Refreshes = prev.Refreshes + 1
	}
	if err := s.save(ctx, entry); err != nil {
		return nil, err
	}

	for _, w := range done.Warnings {
		s.log.Warn("manifest warning", slog.String("manifest_id", string(id)), slog.String("warning", w.Error()))
	}
	s.log.Debug("manifest resolved",
		slog.String("manifest_id", string(id)),
		slog.Int("periods", len(done.Manifest.Periods)),
		slog.Bool("dynamic", done.Manifest.IsDynamic),
		slog.Int("warnings", len(done.Warnings)))
	return entry, nil
}

// save stores entry unless ctx ended. Holding s.mu orders it against Delete
// so a manifest deleted while resolving is not stored again.
func (s *Service) save(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.repo.Save(entry)
}

// drive serves the resolver's continuations until the session is done.
func (s *Service) drive(ctx context.Context, out resolver.Outcome, base string) (*resolver.Done, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		switch o := out.(type) {
		case *resolver.Done:
			return o, nil
		case *resolver.NeedsClock:
			out, err = o.Resume(s.fetchClock(ctx, base, o.URL()))
		case *resolver.NeedsXLinks:
			var results []resolver.XLinkResult
			results, err = s.fetchXLinks(ctx, base, o.URLs(), o.Sources())
			if err != nil {
				return nil, err
			}
			s.log.Debug("xlink round resolved", slog.Int("round", o.Round()), slog.Int("links", len(results)))
			out, err = o.Resume(results)
		default:
			return nil, fmt.Errorf("unexpected resolution outcome %T", out)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *Service) fetchClock(ctx context.Context, base, ref string) resolver.ClockResult {
	resp, err := s.fetcher.Get(ctx, resolveRef(base, ref))
	if s.metrics != nil {
		s.metrics.IncClockFetches(err != nil)
	}
	if err != nil {
		s.log.Warn("clock fetch failed", slog.String("url", ref), slog.String("error", err.Error()))
		return resolver.ClockResult{Err: err}
	}
	return resolver.ClockResult{Data: string(resp.Body)}
}

// fetchXLinks fetches every link of a round concurrently. A relative link
// resolves against the payload it was found in, or the manifest URL. Any
// failure aborts the session.
func (s *Service) fetchXLinks(ctx context.Context, base string, refs, sources []string) ([]resolver.XLinkResult, error) {
	if s.metrics != nil {
		s.metrics.IncXLinkRound(len(refs))
	}

	results := make([]resolver.XLinkResult, len(refs))
	errs := make([]error, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from := base
			if sources[i] != "" {
				from = sources[i]
			}
			target := resolveRef(from, ref)
			resp, err := s.fetcher.Get(ctx, target)
			if err != nil {
				errs[i] = fmt.Errorf("%w: xlink %s: %w", ErrUpstream, target, err)
				return
			}
			periods, err := mpdxml.ParsePeriods(resp.Body)
			if err != nil {
				errs[i] = fmt.Errorf("%w: xlink %s: %w", ErrUpstream, target, err)
				return
			}
			sent, received := resp.SentAt, resp.ReceivedAt
			results[i] = resolver.XLinkResult{
				Periods:    periods,
				URL:        resp.URL,
				SentAt:     &sent,
				ReceivedAt: &received,
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveRef resolves a possibly relative link against base.
func resolveRef(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// Watch re-resolves the manifest at rawURL every time its lifetime elapses.
// It returns nil once the manifest no longer needs refreshing or has been
// deleted, and ctx.Err() when ctx ends. Failed refreshes are logged and
// retried after the stored manifest's lifetime.
func (s *Service) Watch(ctx context.Context, rawURL string) error {
	id := NewManifestID(rawURL)
	var lastErr error
	for first := true; ; first = false {
		var delay time.Duration
		entry, ok := s.repo.Get(id)
		switch {
		case ok && entry.Manifest.Lifetime == nil:
			return nil
		case ok:
			delay = time.Duration(*entry.Manifest.Lifetime * float64(time.Second))
		case !first:
			return lastErr
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		_, lastErr = s.Resolve(ctx, rawURL)
		if lastErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("manifest refresh failed", slog.String("manifest_id", string(id)), slog.String("error", lastErr.Error()))
		}
	}
}

// Track starts a background Watch for rawURL unless one is already running.
// It reports whether a new watch was started.
func (s *Service) Track(rawURL string) bool {
	id := NewManifestID(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watches[id]; ok || s.ctx.Err() != nil {
		return false
	}
	ctx, cancel := context.WithCancel(s.ctx)
	w := &watch{cancel: cancel}
	s.watches[id] = w

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.Watch(ctx, rawURL)
		s.mu.Lock()
		if s.watches[id] == w {
			delete(s.watches, id)
		}
		s.mu.Unlock()
		cancel()
		s.log.Debug("manifest watch stopped", slog.String("manifest_id", string(id)), slog.Any("error", err))
	}()
	return true
}

// Delete stops tracking a manifest.
func (s *Service) Delete(id ManifestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watches[id]; ok {
		w.cancel()
		delete(s.watches, id)
	}
	return s.repo.Delete(id)
}

// TrackedCount returns the number of stored manifests.
func (s *Service) TrackedCount() int {
	return s.repo.TrackedCount()
}

// Watching reports whether a background watch runs for id.
func (s *Service) Watching(id ManifestID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watches[id]
	return ok
}

// Close stops every watch and waits for them to exit.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
