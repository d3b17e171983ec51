package resolver

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// UTCTiming schemes the resolver understands.
const (
	SchemeDirect2014     = "urn:mpeg:dash:utc:direct:2014"
	SchemeDirect2012     = "urn:mpeg:dash:utc:direct:2012"
	SchemeHTTPISO2014    = "urn:mpeg:dash:utc:http-iso:2014"
	SchemeHTTPISO2012    = "urn:mpeg:dash:utc:http-iso:2012"
	SchemeHTTPXSDate2014 = "urn:mpeg:dash:utc:http-xsdate:2014"
	SchemeHTTPXSDate2012 = "urn:mpeg:dash:utc:http-xsdate:2012"
)

var (
	directSchemes = []string{SchemeDirect2014, SchemeDirect2012}
	httpSchemes   = []string{SchemeHTTPISO2014, SchemeHTTPXSDate2014, SchemeHTTPISO2012, SchemeHTTPXSDate2012}
)

// ClockResult is the outcome of fetching a clock resource. A nil Err means
// the fetch succeeded and Data holds the response body.
type ClockResult struct {
	Data string
	Err  error
}

var serverTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseServerTime parses an ISO-8601 / xs:dateTime timestamp as served by
// UTCTiming resources. Timestamps without a zone are taken as UTC.
func ParseServerTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range serverTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidClockPayload, s)
}

// ClockOffset returns the offset that maps a monotonic timestamp taken at
// mono onto the server's timeline.
func ClockOffset(server time.Time, mono time.Duration) time.Duration {
	return time.Duration(server.UnixNano()) - mono
}

// directClockOffset looks for an inline UTCTiming value. Malformed values are
// treated as absent.
func (r *Resolver) directClockOffset(s session) (time.Duration, bool) {
	for _, ut := range s.root.UTCTimings {
		if !slices.Contains(directSchemes, ut.SchemeIDURI) || ut.Value == "" {
			continue
		}
		server, err := ParseServerTime(ut.Value)
		if err != nil {
			r.log.Debug("ignoring direct UTCTiming", slog.String("error", err.Error()))
			continue
		}
		mono := r.clock.Monotonic()
		if s.args.ManifestReceivedTime != nil {
			mono = *s.args.ManifestReceivedTime
		}
		return ClockOffset(server, mono), true
	}
	return 0, false
}

// httpClockURL returns the first UTCTiming URL that can be fetched over HTTP.
func httpClockURL(root *ManifestIR) string {
	for _, ut := range root.UTCTimings {
		if ut.Value == "" {
			continue
		}
		if slices.Contains(httpSchemes, ut.SchemeIDURI) {
			return ut.Value
		}
	}
	return ""
}

// checkClock decides whether the session still needs a server clock. It
// returns the updated session, and a continuation when a fetch is required.
func (r *Resolver) checkClock(s session) (session, *NeedsClock) {
	if s.clockOffset != nil {
		return s, nil
	}
	if offset, ok := r.directClockOffset(s); ok {
		r.log.Debug("clock offset from direct UTCTiming", slog.Duration("offset", offset))
		return s.withClockOffset(offset), nil
	}
	if !s.root.IsDynamic() || s.clockAttempted {
		return s, nil
	}
	u := httpClockURL(s.root)
	if u == "" {
		return s, nil
	}
	return s, &NeedsClock{url: u, sess: s, r: r}
}

// applyClockResult folds a clock fetch result into the session. The clock is
// marked attempted whatever the result.
func (r *Resolver) applyClockResult(s session, res ClockResult) session {
	s = s.withClockAttempted()
	if res.Err != nil {
		r.log.Warn("clock fetch failed, continuing without server clock", slog.String("error", res.Err.Error()))
		return s.withWarnings(fmt.Errorf("%w: %w", ErrClockFetchFailed, res.Err))
	}
	server, err := ParseServerTime(res.Data)
	if err != nil {
		r.log.Warn("clock payload unusable", slog.String("error", err.Error()))
		return s.withWarnings(err)
	}
	offset := ClockOffset(server, r.clock.Monotonic())
	r.log.Debug("clock offset from remote UTCTiming", slog.Duration("offset", offset))
	return s.withClockOffset(offset)
}
