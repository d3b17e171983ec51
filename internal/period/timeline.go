package period

import (
	"math"

	"dash-resolver/internal/resolver"
)

// liveEdgeFunc reports the server's "now" on the presentation timeline.
type liveEdgeFunc func() (float64, bool)

// timelinePositions returns the first and last positions, in seconds, at
// which segments described by tl are available. A nil result means the
// position could not be derived.
func timelinePositions(tl *resolver.TimelineIR, start float64, end *float64, liveEdge liveEdgeFunc) (first, last *float64) {
	if tl == nil {
		return nil, nil
	}
	ts := float64(tl.Timescale)
	if ts == 0 {
		ts = 1
	}
	pto := float64(tl.PresentationTimeOffset)

	if len(tl.Entries) > 0 {
		return explicitTimeline(tl.Entries, ts, pto, start, end, liveEdge)
	}
	if tl.SegmentDuration == 0 {
		return nil, nil
	}

	d := float64(tl.SegmentDuration) / ts
	f := start
	switch {
	case end != nil:
		return &f, ptr(*end)
	default:
		live, ok := liveEdge()
		if !ok || live < start {
			return &f, nil
		}
		l := start + math.Floor((live-start)/d)*d
		return &f, &l
	}
}

func explicitTimeline(entries []resolver.TimelineEntry, ts, pto, start float64, end *float64, liveEdge liveEdgeFunc) (*float64, *float64) {
	toScaled := func(pos float64) float64 { return (pos-start)*ts + pto }
	toPos := func(scaled float64) float64 { return start + (scaled-pto)/ts }

	var (
		cur     float64
		firstT  *float64
		lastEnd *float64
	)
	for i, e := range entries {
		if e.T != nil {
			cur = float64(*e.T)
		}
		if e.D == 0 {
			continue
		}
		if firstT == nil {
			firstT = ptr(cur)
		}
		d := float64(e.D)

		repeats := e.R
		if repeats < 0 {
			repeats = 0
			switch {
			case i+1 < len(entries) && entries[i+1].T != nil:
				repeats = int(math.Ceil((float64(*entries[i+1].T)-cur)/d)) - 1
			case end != nil:
				repeats = int(math.Ceil((toScaled(*end)-cur)/d)) - 1
			default:
				// Only segments that ended before the live edge exist.
				if live, ok := liveEdge(); ok {
					repeats = int(math.Floor((toScaled(live)-cur)/d)) - 1
				}
			}
			repeats = max(repeats, 0)
		}
		cur += d * float64(repeats+1)
		lastEnd = ptr(cur)
	}
	if firstT == nil {
		return nil, nil
	}
	return ptr(toPos(*firstT)), ptr(toPos(*lastEnd))
}

func ptr[T any](v T) *T {
	return &v
}
