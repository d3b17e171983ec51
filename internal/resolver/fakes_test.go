package resolver

import (
	"time"
)

type fakeClock struct {
	mono time.Duration
	now  time.Time
}

func (c fakeClock) Monotonic() time.Duration { return c.mono }
func (c fakeClock) Now() time.Time           { return c.now }

// testClock sits 10s after its monotonic origin, at 2024-01-01T00:00:00Z.
var testClock = fakeClock{
	mono: 10 * time.Second,
	now:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

type fakeBounds struct {
	cfg  BoundsConfig
	live *float64
	last *float64
}

func (b *fakeBounds) EstimatedLiveEdge() (float64, bool) {
	if b.live == nil {
		return 0, false
	}
	return *b.live, true
}
func (b *fakeBounds) EstimatedMinimumPosition() (float64, bool) { return 0, false }
func (b *fakeBounds) EstimatedMaximumPosition() (float64, bool) { return b.EstimatedLiveEdge() }
func (b *fakeBounds) SetLastPosition(pos float64, _ time.Duration) {
	b.last = &pos
}
func (b *fakeBounds) LastPosition() (float64, bool) {
	if b.last == nil {
		return 0, false
	}
	return *b.last, true
}

type fakeBaseURLs struct{}

func (fakeBaseURLs) Resolve(inherited []BaseURL, declared []BaseURLIR) ([]BaseURL, []error) {
	if len(declared) == 0 {
		return inherited, nil
	}
	out := make([]BaseURL, 0, len(declared))
	for _, d := range declared {
		out = append(out, BaseURL{URL: d.URL})
	}
	return out, nil
}

type fakeProtection struct {
	refs      []ContentProtectionIR
	finalized bool
}

func (p *fakeProtection) AddReferences(records []ContentProtectionIR) error {
	p.refs = append(p.refs, records...)
	return nil
}
func (p *fakeProtection) Add(record ContentProtectionIR) (*ContentProtection, error) {
	return &ContentProtection{SchemeIDURI: record.SchemeIDURI}, nil
}
func (p *fakeProtection) Finalize() []error {
	p.finalized = true
	return nil
}

// positionsByID lets tests attach safe/unsafe bounds to periods by ID.
type positionsByID map[string][3]*float64

// fakeParser maps PeriodIR start/duration straight onto Period and records
// the context it was called with.
type fakeParser struct {
	positions positionsByID
	calls     int
	lastCtx   PeriodContext
}

func (f *fakeParser) ParsePeriods(periods []PeriodIR, ctx PeriodContext) ([]Period, []error) {
	f.calls++
	f.lastCtx = ctx
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		parsed := Period{Key: p.Key, ID: p.ID, Duration: p.Duration}
		if p.Start != nil {
			parsed.Start = *p.Start
		}
		if prov, ok := ctx.Provenance(p.Key); ok {
			parsed.XLink = &prov
		}
		if pos, ok := f.positions[p.ID]; ok {
			parsed.MinimumSafePosition = pos[0]
			parsed.MaximumSafePosition = pos[1]
			parsed.MaximumUnsafePosition = pos[2]
		}
		out = append(out, parsed)
	}
	return out, nil
}

type harness struct {
	parser     *fakeParser
	bounds     *fakeBounds
	protection *fakeProtection
	resolver   *Resolver
}

func newHarness(opts Options) *harness {
	h := &harness{parser: &fakeParser{}, protection: &fakeProtection{}}
	if opts.Clock == nil {
		opts.Clock = testClock
	}
	h.resolver = New(opts, Collaborators{
		Periods: h.parser,
		NewBounds: func(cfg BoundsConfig) Bounds {
			if h.bounds == nil {
				h.bounds = &fakeBounds{}
			}
			h.bounds.cfg = cfg
			return h.bounds
		},
		BaseURLs:      fakeBaseURLs{},
		NewProtection: func() ProtectionRegistry { return h.protection },
	}, nil)
	return h
}

func f64(v float64) *float64 { return &v }

func realPeriod(id string, start float64) PeriodIR {
	return PeriodIR{ID: id, Start: f64(start)}
}

func linkPeriod(href string) PeriodIR {
	return PeriodIR{XLinkHref: href, XLinkActuate: ActuateOnLoad}
}
