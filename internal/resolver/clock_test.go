package resolver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ast2024 = 1704067200.0 // 2024-01-01T00:00:00Z

func dynamicManifest(timings ...Descriptor) *ManifestIR {
	return &ManifestIR{
		Type:                  TypeDynamic,
		AvailabilityStartTime: f64(ast2024),
		MinimumUpdatePeriod:   f64(2),
		UTCTimings:            timings,
		Periods:               []PeriodIR{realPeriod("p0", 0)},
	}
}

func TestParseServerTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"rfc3339", "2024-01-01T00:00:30Z", true},
		{"fraction", "2024-01-01T00:00:30.000Z", true},
		{"no zone", "2024-01-01T00:00:30", true},
		{"offset", "2024-01-01T01:00:30+01:00", true},
		{"whitespace", "  2024-01-01T00:00:30Z\n", true},
		{"http date", "Mon, 01 Jan 2024 00:00:30 GMT", true},
		{"garbage", "not a date", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServerTime(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidClockPayload)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %v", got)
		})
	}
}

func TestClock_suppliedOffsetWins(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(
		Descriptor{SchemeIDURI: SchemeDirect2014, Value: "2024-01-01T00:00:30Z"},
		Descriptor{SchemeIDURI: SchemeHTTPISO2014, Value: "https://time.example.com/iso"},
	)
	supplied := 42 * time.Second

	out, err := h.resolver.Resolve(ir, Args{ExternalClockOffset: &supplied})
	require.NoError(t, err)
	done, ok := out.(*Done)
	require.True(t, ok, "expected Done, got %T", out)
	require.NotNil(t, done.Manifest.ClockOffset)
	assert.Equal(t, supplied, *done.Manifest.ClockOffset)
	assert.Equal(t, &supplied, h.bounds.cfg.ServerTimestampOffset)
}

func TestClock_directValueNeverSuspends(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(
		Descriptor{SchemeIDURI: SchemeHTTPXSDate2014, Value: "https://time.example.com/xs"},
		Descriptor{SchemeIDURI: SchemeDirect2014, Value: "2024-01-01T00:00:30Z"},
	)

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)
	done, ok := out.(*Done)
	require.True(t, ok, "expected Done, got %T", out)

	want := ClockOffset(time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC), testClock.mono)
	require.NotNil(t, done.Manifest.ClockOffset)
	assert.Equal(t, want, *done.Manifest.ClockOffset)
	assert.InDelta(t, 30.0, done.Manifest.TimeBounds.MaximumTimeData.MaximumSafePosition, 1e-6)
	assert.Empty(t, done.Warnings)
}

func TestClock_directValueUsesReceivedTime(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(Descriptor{SchemeIDURI: SchemeDirect2012, Value: "2024-01-01T00:00:30Z"})
	received := 4 * time.Second

	out, err := h.resolver.Resolve(ir, Args{ManifestReceivedTime: &received})
	require.NoError(t, err)
	done := out.(*Done)

	want := ClockOffset(time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC), received)
	assert.Equal(t, want, *done.Manifest.ClockOffset)
}

func TestClock_malformedDirectFallsThrough(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(
		Descriptor{SchemeIDURI: SchemeDirect2014, Value: "yesterday"},
		Descriptor{SchemeIDURI: SchemeHTTPISO2014, Value: "https://time.example.com/iso"},
	)

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)
	nc, ok := out.(*NeedsClock)
	require.True(t, ok, "expected NeedsClock, got %T", out)
	assert.Equal(t, "https://time.example.com/iso", nc.URL())
}

func TestClock_staticNeverFetches(t *testing.T) {
	h := newHarness(Options{})
	ir := &ManifestIR{
		Type:       TypeStatic,
		UTCTimings: []Descriptor{{SchemeIDURI: SchemeHTTPISO2014, Value: "https://time.example.com/iso"}},
		Periods:    []PeriodIR{{ID: "p0", Start: f64(0), Duration: f64(10)}},
	}

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)
	assert.IsType(t, &Done{}, out)
}

func TestClock_noFetchableURL(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(Descriptor{SchemeIDURI: "urn:mpeg:dash:utc:ntp:2014", Value: "pool.ntp.org"})

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)
	done, ok := out.(*Done)
	require.True(t, ok, "expected Done, got %T", out)
	assert.Nil(t, done.Manifest.ClockOffset)
	assert.Contains(t, done.Warnings, ErrNoClockOffset)
}

func TestClock_fetchSuccess(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(Descriptor{SchemeIDURI: SchemeHTTPXSDate2014, Value: "https://time.example.com/xs"})

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)
	nc := out.(*NeedsClock)

	out, err = nc.Resume(ClockResult{Data: "2024-01-01T00:01:00Z"})
	require.NoError(t, err)
	done, ok := out.(*Done)
	require.True(t, ok, "expected Done, got %T", out)

	want := ClockOffset(time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), testClock.mono)
	require.NotNil(t, done.Manifest.ClockOffset)
	assert.Equal(t, want, *done.Manifest.ClockOffset)
	assert.InDelta(t, 60.0, done.Manifest.TimeBounds.MaximumTimeData.MaximumSafePosition, 1e-6)
	assert.Empty(t, done.Warnings)
}

func TestClock_fetchFailureIsWarning(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(Descriptor{SchemeIDURI: SchemeHTTPISO2014, Value: "https://time.example.com/iso"})
	fetchErr := errors.New("connection refused")

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)

	out, err = out.(*NeedsClock).Resume(ClockResult{Err: fetchErr})
	require.NoError(t, err)
	done, ok := out.(*Done)
	require.True(t, ok, "expected Done, got %T", out)

	require.Len(t, done.Warnings, 2)
	assert.ErrorIs(t, done.Warnings[0], ErrClockFetchFailed)
	assert.ErrorIs(t, done.Warnings[0], fetchErr)
	assert.ErrorIs(t, done.Warnings[1], ErrNoClockOffset)

	// Local time fallback: now (2024-01-01T00:00:00Z) minus AST.
	assert.InDelta(t, 0.0, done.Manifest.TimeBounds.MaximumTimeData.MaximumSafePosition, 1e-6)
}

func TestClock_invalidPayloadIsWarning(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(Descriptor{SchemeIDURI: SchemeHTTPISO2014, Value: "https://time.example.com/iso"})

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)
	out, err = out.(*NeedsClock).Resume(ClockResult{Data: "<html>oops</html>"})
	require.NoError(t, err)
	done := out.(*Done)

	assert.Nil(t, done.Manifest.ClockOffset)
	require.NotEmpty(t, done.Warnings)
	assert.ErrorIs(t, done.Warnings[0], ErrInvalidClockPayload)
}

func TestClock_fetchedOnceAcrossXLinkRounds(t *testing.T) {
	h := newHarness(Options{})
	ir := dynamicManifest(Descriptor{SchemeIDURI: SchemeHTTPISO2014, Value: "https://time.example.com/iso"})
	ir.Periods = []PeriodIR{linkPeriod("https://cdn.example.com/a.xml")}

	out, err := h.resolver.Resolve(ir, Args{})
	require.NoError(t, err)
	require.IsType(t, &NeedsClock{}, out)

	out, err = out.(*NeedsClock).Resume(ClockResult{Err: errors.New("timeout")})
	require.NoError(t, err)
	nx, ok := out.(*NeedsXLinks)
	require.True(t, ok, "expected NeedsXLinks, got %T", out)

	// The spliced period is itself a link: a second round, still no clock.
	out, err = nx.Resume([]XLinkResult{{Periods: []PeriodIR{linkPeriod("https://cdn.example.com/b.xml")}}})
	require.NoError(t, err)
	nx, ok = out.(*NeedsXLinks)
	require.True(t, ok, "expected NeedsXLinks, got %T", out)

	out, err = nx.Resume([]XLinkResult{{Periods: []PeriodIR{realPeriod("b0", 0)}}})
	require.NoError(t, err)
	assert.IsType(t, &Done{}, out)
}
