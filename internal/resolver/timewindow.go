package resolver

import (
	"log/slog"
	"math"
	"net/url"
	"slices"
	"time"
)

// positions are the edges proven by the parsed periods' segment data.
type positions struct {
	minimumSafe   *float64
	maximumSafe   *float64
	maximumUnsafe *float64
}

// periodPositions takes the minimum from the first period that knows one and
// the maximums from the last period that knows one.
func periodPositions(periods []Period) positions {
	var pos positions
	for _, p := range periods {
		if p.MinimumSafePosition != nil {
			pos.minimumSafe = p.MinimumSafePosition
			break
		}
	}
	for i := len(periods) - 1; i >= 0; i-- {
		p := periods[i]
		if p.MaximumSafePosition == nil && p.MaximumUnsafePosition == nil {
			continue
		}
		pos.maximumSafe = p.MaximumSafePosition
		pos.maximumUnsafe = p.MaximumUnsafePosition
		if pos.maximumUnsafe == nil {
			pos.maximumUnsafe = pos.maximumSafe
		}
		break
	}
	return pos
}

// initialBaseURLs is the directory of the manifest's own URL.
func initialBaseURLs(source string) []BaseURL {
	if source == "" {
		return nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return []BaseURL{{URL: source}}
	}
	return []BaseURL{{URL: u.ResolveReference(&url.URL{Path: "."}).String()}}
}

func availabilityStartTime(root *ManifestIR, args Args) float64 {
	if !root.IsDynamic() {
		return 0
	}
	if root.AvailabilityStartTime != nil {
		return *root.AvailabilityStartTime
	}
	if args.ReferenceDateTime != nil {
		return *args.ReferenceDateTime
	}
	return 0
}

// lifetime is present only when minimumUpdatePeriod is declared and
// non-negative; zero is replaced by the fallback.
func (r *Resolver) lifetime(root *ManifestIR) *float64 {
	mup := root.MinimumUpdatePeriod
	if mup == nil || *mup < 0 {
		return nil
	}
	if *mup == 0 {
		return ptr(r.fallbackLifetime.Seconds())
	}
	return ptr(*mup)
}

func lastPeriodEnd(periods []Period) *float64 {
	if len(periods) == 0 {
		return nil
	}
	last := periods[len(periods)-1]
	if last.End != nil {
		return last.End
	}
	if last.Duration != nil {
		return ptr(last.Start + *last.Duration)
	}
	return nil
}

// finalize runs the collaborators over the resolved period list and computes
// the manifest's time window.
func (r *Resolver) finalize(s session) *Done {
	root := s.root
	args := s.args
	isDynamic := root.IsDynamic()
	warnings := slices.Clone(s.warnings)

	baseURLs, errs := r.collab.BaseURLs.Resolve(initialBaseURLs(args.SourceURL), root.BaseURLs)
	warnings = append(warnings, errs...)

	ast := availabilityStartTime(root, args)
	bounds := r.collab.NewBounds(BoundsConfig{
		AvailabilityStartTime: ast,
		IsDynamic:             isDynamic,
		TimeShiftBufferDepth:  root.TimeShiftBufferDepth,
		ServerTimestampOffset: s.clockOffset,
		Clock:                 r.clock,
	})

	protection := r.collab.NewProtection()
	if err := protection.AddReferences(root.ContentProtections); err != nil {
		warnings = append(warnings, err)
	}

	periods, errs := r.collab.Periods.ParsePeriods(s.periods, PeriodContext{
		AvailabilityStartTime: ast,
		BaseURLs:              baseURLs,
		ClockOffset:           s.clockOffset,
		Duration:              root.Duration,
		IsDynamic:             isDynamic,
		Profiles:              root.Profiles,
		ReceivedTime:          args.ManifestReceivedTime,
		TimeShiftBufferDepth:  root.TimeShiftBufferDepth,
		Previous:              args.PreviousManifest,
		Bounds:                bounds,
		BaseURLRes:            r.collab.BaseURLs,
		Protection:            protection,
		Provenance:            s.provenance.lookup,
	})
	warnings = append(warnings, errs...)
	warnings = append(warnings, protection.Finalize()...)

	pos := periodPositions(periods)
	now := r.clock.Monotonic()

	var (
		minimumTime *float64
		depth       *float64
		maxData     MaximumTimeData
	)
	if !isDynamic {
		minimumTime = pos.minimumSafe
		if minimumTime == nil {
			if len(periods) > 0 {
				minimumTime = ptr(periods[0].Start)
			} else {
				minimumTime = ptr(0.0)
			}
		}

		maxSafe := math.Inf(1)
		if root.Duration != nil {
			maxSafe = *root.Duration
		}
		if end := lastPeriodEnd(periods); end != nil && *end < maxSafe {
			maxSafe = *end
		}
		if pos.maximumSafe != nil && *pos.maximumSafe < maxSafe {
			maxSafe = *pos.maximumSafe
		}
		maxData = MaximumTimeData{IsLinear: false, MaximumSafePosition: maxSafe, Time: now}
	} else {
		minimumTime = pos.minimumSafe

		var maxSafe float64
		switch {
		case pos.maximumSafe != nil:
			maxSafe = *pos.maximumSafe
		case s.clockOffset != nil:
			maxSafe = (now+*s.clockOffset).Seconds() - ast
		default:
			r.log.Warn("no server clock, maximum position derived from local time")
			warnings = append(warnings, ErrNoClockOffset)
			maxSafe = float64(r.clock.Now().UnixNano())/float64(time.Second) - ast
		}

		live, ok := bounds.EstimatedLiveEdge()
		if !ok {
			if pos.maximumUnsafe != nil {
				live = *pos.maximumUnsafe
			} else {
				live = maxSafe
			}
		}
		maxData = MaximumTimeData{IsLinear: true, MaximumSafePosition: maxSafe, LivePosition: ptr(live), Time: now}

		if root.TimeShiftBufferDepth != nil {
			d := *root.TimeShiftBufferDepth
			if root.MaxSegmentDuration != nil {
				d += *root.MaxSegmentDuration
			}
			if minimumTime != nil && live-*minimumTime > d {
				d = live - *minimumTime
			}
			depth = ptr(d)
		}
	}

	lastKnown := !isDynamic
	if isDynamic && root.MinimumUpdatePeriod == nil {
		last := len(periods) > 0 && periods[len(periods)-1].End != nil
		lastKnown = last || root.Duration != nil
	}

	uris := make([]string, 0, len(root.Locations)+1)
	if args.SourceURL != "" {
		uris = append(uris, args.SourceURL)
	}
	uris = append(uris, root.Locations...)

	m := &Manifest{
		Periods:                    periods,
		AvailabilityStartTime:      ast,
		ClockOffset:                s.clockOffset,
		IsDynamic:                  isDynamic,
		IsLive:                     isDynamic,
		IsLastPeriodKnown:          lastKnown,
		PublishTime:                root.PublishTime,
		SuggestedPresentationDelay: root.SuggestedPresentationDelay,
		Profiles:                   root.Profiles,
		TimeBounds: TimeBounds{
			MinimumSafePosition: minimumTime,
			TimeshiftDepth:      depth,
			MaximumTimeData:     maxData,
		},
		Lifetime: r.lifetime(root),
		URIs:     uris,
	}

	r.log.Debug("manifest resolved",
		slog.Bool("dynamic", isDynamic),
		slog.Int("periods", len(periods)),
		slog.Int("warnings", len(warnings)),
		slog.Int("xlink_rounds", s.rounds))

	return &Done{Manifest: m, Warnings: warnings}
}
