// Package period is the default period parser of the resolver: it places
// periods on the presentation timeline and summarizes what each makes
// available.
package period

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"dash-resolver/internal/resolver"
)

var (
	ErrUnknownStart  = errors.New("period: start cannot be determined")
	ErrOverlap       = errors.New("period: overlaps the next period")
	ErrProtectionAdd = errors.New("period: content protection rejected")
)

// Parser implements resolver.PeriodParser.
type Parser struct {
	clock resolver.Clock
	log   *slog.Logger
}

// New returns a Parser. The clock timestamps the last position handed to the
// bounds calculator when the manifest's received time is unknown and must be
// the clock the resolver runs on.
func New(clock resolver.Clock, log *slog.Logger) *Parser {
	if clock == nil {
		clock = resolver.SystemClock()
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Parser{clock: clock, log: log}
}

// ParsePeriods places every period, derives segment availability and feeds
// the bounds calculator. Periods whose start cannot be placed are dropped
// with a warning.
func (p *Parser) ParsePeriods(periods []resolver.PeriodIR, ctx resolver.PeriodContext) ([]resolver.Period, []error) {
	var (
		warnings []error
		out      []resolver.Period
	)

	var prevEnd *float64
	for i, ir := range periods {
		start, ok := periodStart(ir, i, prevEnd)
		if !ok {
			warnings = append(warnings, fmt.Errorf("%w: period %d (%q)", ErrUnknownStart, i, ir.ID))
			prevEnd = nil
			continue
		}
		if ir.Duration != nil && i+1 < len(periods) && periods[i+1].Start != nil && start+*ir.Duration > *periods[i+1].Start {
			warnings = append(warnings, fmt.Errorf("%w: %q ends at %g after next start %g", ErrOverlap, ir.ID, start+*ir.Duration, *periods[i+1].Start))
		}

		end := periodEnd(periods, i, start, ctx.Duration)
		per := resolver.Period{
			Key:      ir.Key,
			ID:       ir.ID,
			Start:    start,
			End:      end,
			Duration: ir.Duration,
		}
		if per.Duration == nil && end != nil {
			per.Duration = ptr(*end - start)
		}

		urls, errs := ctx.BaseURLRes.Resolve(ctx.BaseURLs, ir.BaseURLs)
		per.BaseURLs = urls
		warnings = append(warnings, errs...)

		if ctx.Provenance != nil {
			if prov, ok := ctx.Provenance(ir.Key); ok {
				per.XLink = &prov
			}
		}

		sets, errs := p.adaptationSets(ir, per, ctx)
		per.AdaptationSets = sets
		warnings = append(warnings, errs...)

		out = append(out, per)
		prevEnd = end
	}

	p.feedBounds(out, ctx)
	if ctx.IsDynamic {
		clipToWindow(out, ctx.Bounds)
	}

	for i := range out {
		setSafeBounds(&out[i])
	}
	return out, warnings
}

func periodStart(ir resolver.PeriodIR, i int, prevEnd *float64) (float64, bool) {
	switch {
	case ir.Start != nil:
		return *ir.Start, true
	case prevEnd != nil:
		return *prevEnd, true
	case i == 0:
		return 0, true
	}
	return 0, false
}

// periodEnd is the next declared start, else start+duration, else the
// presentation duration for the last period.
func periodEnd(periods []resolver.PeriodIR, i int, start float64, mpdDuration *float64) *float64 {
	if i+1 < len(periods) && periods[i+1].Start != nil {
		return ptr(*periods[i+1].Start)
	}
	if d := periods[i].Duration; d != nil {
		return ptr(start + *d)
	}
	if i == len(periods)-1 && mpdDuration != nil {
		return ptr(*mpdDuration)
	}
	return nil
}

func (p *Parser) adaptationSets(ir resolver.PeriodIR, per resolver.Period, ctx resolver.PeriodContext) ([]resolver.AdaptationSet, []error) {
	var warnings []error
	hint := previousHint(ctx.Previous, ir, per)

	liveEdge := func() (float64, bool) {
		if !ctx.IsDynamic || ctx.Bounds == nil {
			return 0, false
		}
		return ctx.Bounds.EstimatedLiveEdge()
	}

	sets := make([]resolver.AdaptationSet, 0, len(ir.AdaptationSets))
	for i, as := range ir.AdaptationSets {
		set := resolver.AdaptationSet{
			ID:              as.ID,
			ContentType:     as.ContentType,
			MimeType:        as.MimeType,
			Representations: as.Representations,
		}
		for _, cp := range as.ContentProtections {
			rec, err := ctx.Protection.Add(cp)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("%w: %w", ErrProtectionAdd, err))
				continue
			}
			set.ContentProtections = append(set.ContentProtections, rec)
		}

		if hint != nil {
			set.FirstPosition = hint.AdaptationSets[i].FirstPosition
			set.LastPosition = hint.AdaptationSets[i].LastPosition
		} else {
			set.FirstPosition, set.LastPosition = timelinePositions(as.Timeline, per.Start, per.End, liveEdge)
		}
		sets = append(sets, set)
	}
	if hint != nil {
		p.log.Debug("reusing previous period summary", "period_id", ir.ID)
	}
	return sets, warnings
}

// previousHint returns the previous manifest's version of a period when its
// availability can no longer change: same ID and placement, a known end and
// matching adaptation sets.
func previousHint(prev *resolver.Manifest, ir resolver.PeriodIR, per resolver.Period) *resolver.Period {
	if ir.ID == "" || per.End == nil {
		return nil
	}
	old, ok := prev.PeriodByID(ir.ID)
	if !ok || old.Start != per.Start || old.End == nil || *old.End != *per.End {
		return nil
	}
	if len(old.AdaptationSets) != len(ir.AdaptationSets) {
		return nil
	}
	for i, as := range ir.AdaptationSets {
		if old.AdaptationSets[i].ID != as.ID {
			return nil
		}
	}
	return &old
}

// feedBounds hands the latest position any adaptation set reaches to the
// bounds calculator.
func (p *Parser) feedBounds(out []resolver.Period, ctx resolver.PeriodContext) {
	if ctx.Bounds == nil {
		return
	}
	var last *float64
	for _, per := range out {
		for _, as := range per.AdaptationSets {
			if as.LastPosition != nil && (last == nil || *as.LastPosition > *last) {
				last = as.LastPosition
			}
		}
	}
	if last == nil {
		return
	}
	at := p.clock.Monotonic()
	if ctx.ReceivedTime != nil {
		at = *ctx.ReceivedTime
	}
	ctx.Bounds.SetLastPosition(*last, at)
}

// clipToWindow moves first positions that fell out of the time-shift window
// forward to the window's start.
func clipToWindow(out []resolver.Period, b resolver.Bounds) {
	if b == nil {
		return
	}
	minimum, ok := b.EstimatedMinimumPosition()
	if !ok {
		return
	}
	for i := range out {
		for j := range out[i].AdaptationSets {
			as := &out[i].AdaptationSets[j]
			if as.FirstPosition == nil || *as.FirstPosition >= minimum {
				continue
			}
			if as.LastPosition != nil && *as.LastPosition < minimum {
				as.FirstPosition = ptr(*as.LastPosition)
				continue
			}
			as.FirstPosition = ptr(minimum)
		}
	}
}

// setSafeBounds derives the period's window from its adaptation sets: the
// latest first position, the earliest last position and the latest last
// position.
func setSafeBounds(per *resolver.Period) {
	for _, as := range per.AdaptationSets {
		if f := as.FirstPosition; f != nil {
			if per.MinimumSafePosition == nil || *f > *per.MinimumSafePosition {
				per.MinimumSafePosition = ptr(*f)
			}
		}
		if l := as.LastPosition; l != nil {
			if per.MaximumSafePosition == nil || *l < *per.MaximumSafePosition {
				per.MaximumSafePosition = ptr(*l)
			}
			if per.MaximumUnsafePosition == nil || *l > *per.MaximumUnsafePosition {
				per.MaximumUnsafePosition = ptr(*l)
			}
		}
	}
}
