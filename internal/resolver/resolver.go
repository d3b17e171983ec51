package resolver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultFallbackLifetime replaces a minimumUpdatePeriod of zero.
	DefaultFallbackLifetime = 3 * time.Second

	// DefaultMaxXLinkRounds bounds the number of xlink rounds in a session.
	DefaultMaxXLinkRounds = 16
)

var (
	// ErrNilManifest is returned when Resolve is called without a manifest.
	ErrNilManifest = errors.New("resolver: nil manifest")

	// ErrMissingCollaborator is returned when a required collaborator is nil.
	ErrMissingCollaborator = errors.New("resolver: missing collaborator")

	// ErrXLinkCountMismatch is returned when NeedsXLinks.Resume receives a
	// different number of results than links requested.
	ErrXLinkCountMismatch = errors.New("resolver: wrong number of resolved xlinks")

	// ErrTooManyRounds is returned when xlinks keep producing placeholders.
	ErrTooManyRounds = errors.New("resolver: too many xlink rounds")

	// ErrClockFetchFailed wraps a failed clock fetch reported as a warning.
	ErrClockFetchFailed = errors.New("resolver: clock fetch failed")

	// ErrInvalidClockPayload is reported when a clock value cannot be parsed.
	ErrInvalidClockPayload = errors.New("resolver: invalid clock value")

	// ErrNoClockOffset is reported when a dynamic manifest's maximum position
	// had to be derived from the local clock.
	ErrNoClockOffset = errors.New("resolver: no server clock, using local time")
)

// Options tune a Resolver. Zero values select the defaults.
type Options struct {
	FallbackLifetime time.Duration
	MaxXLinkRounds   int
	Clock            Clock
}

// Resolver runs resolution sessions. It holds no per-session state and may be
// shared between goroutines.
type Resolver struct {
	fallbackLifetime time.Duration
	maxRounds        int
	clock            Clock
	collab           Collaborators
	log              *slog.Logger
}

// New returns a Resolver using the given collaborators. log may be nil.
func New(opts Options, collab Collaborators, log *slog.Logger) *Resolver {
	if opts.FallbackLifetime <= 0 {
		opts.FallbackLifetime = DefaultFallbackLifetime
	}
	if opts.MaxXLinkRounds <= 0 {
		opts.MaxXLinkRounds = DefaultMaxXLinkRounds
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		fallbackLifetime: opts.FallbackLifetime,
		maxRounds:        opts.MaxXLinkRounds,
		clock:            opts.Clock,
		collab:           collab,
		log:              log,
	}
}

// Clock returns the clock the resolver samples.
func (r *Resolver) Clock() Clock {
	return r.clock
}

// Resolve starts a resolution session for ir. The manifest tree is not
// modified; xlink splicing works on a session-owned copy of the period list.
func (r *Resolver) Resolve(ir *ManifestIR, args Args) (Outcome, error) {
	if ir == nil {
		return nil, ErrNilManifest
	}
	if !r.collab.complete() {
		return nil, ErrMissingCollaborator
	}
	return r.step(newSession(ir, args))
}

// step runs one pass of the state machine: clock first, then xlinks, then
// the time-window computation.
func (r *Resolver) step(s session) (Outcome, error) {
	s, needsClock := r.checkClock(s)
	if needsClock != nil {
		r.log.Debug("resolution needs clock", slog.String("url", needsClock.url))
		return needsClock, nil
	}

	s = dropResolvedToZero(s)
	if targets := collectXLinks(s.periods); len(targets) > 0 {
		if s.rounds >= r.maxRounds {
			return nil, fmt.Errorf("%w: %d rounds, %d links pending", ErrTooManyRounds, s.rounds, len(targets))
		}
		r.log.Debug("resolution needs xlinks", slog.Int("links", len(targets)), slog.Int("round", s.rounds+1))
		return &NeedsXLinks{targets: targets, sess: s, r: r}, nil
	}

	return r.finalize(s), nil
}
