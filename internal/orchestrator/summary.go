package orchestrator

import (
	"math"
	"time"
)

// Summary is the JSON view of a resolved manifest. Positions are seconds on
// the presentation timeline; values that are unknown or non-finite are null.
type Summary struct {
	ID                    ManifestID      `json:"id"`
	URL                   string          `json:"url"`
	Dynamic               bool            `json:"dynamic"`
	Live                  bool            `json:"live"`
	LastPeriodKnown       bool            `json:"last_period_known"`
	AvailabilityStartTime *float64        `json:"availability_start_time"`
	LifetimeSeconds       *float64        `json:"lifetime_seconds"`
	MinimumSafePosition   *float64        `json:"minimum_safe_position"`
	MaximumSafePosition   *float64        `json:"maximum_safe_position"`
	LivePosition          *float64        `json:"live_position"`
	TimeshiftDepth        *float64        `json:"timeshift_depth"`
	ClockOffsetMS         *int64          `json:"clock_offset_ms,omitempty"`
	Periods               []PeriodSummary `json:"periods"`
	URIs                  []string        `json:"uris"`
	Warnings              []string        `json:"warnings"`
	ResolvedAt            time.Time       `json:"resolved_at"`
	Refreshes             int             `json:"refreshes"`
}

// PeriodSummary is the JSON view of one period.
type PeriodSummary struct {
	ID             string   `json:"id"`
	Start          *float64 `json:"start"`
	End            *float64 `json:"end"`
	Duration       *float64 `json:"duration"`
	AdaptationSets int      `json:"adaptation_sets"`
	XLinkURL       string   `json:"xlink_url,omitempty"`
}

// Summarize builds the JSON view of e.
func Summarize(e *Entry) Summary {
	m := e.Manifest
	tb := m.TimeBounds
	s := Summary{
		ID:                    e.ID,
		URL:                   e.URL,
		Dynamic:               m.IsDynamic,
		Live:                  m.IsLive,
		LastPeriodKnown:       m.IsLastPeriodKnown,
		AvailabilityStartTime: finite(m.AvailabilityStartTime),
		LifetimeSeconds:       finitePtr(m.Lifetime),
		MinimumSafePosition:   finitePtr(tb.MinimumSafePosition),
		MaximumSafePosition:   finite(tb.MaximumTimeData.MaximumSafePosition),
		LivePosition:          finitePtr(tb.MaximumTimeData.LivePosition),
		TimeshiftDepth:        finitePtr(tb.TimeshiftDepth),
		Periods:               make([]PeriodSummary, 0, len(m.Periods)),
		URIs:                  m.URIs,
		Warnings:              make([]string, 0, len(e.Warnings)),
		ResolvedAt:            e.ResolvedAt,
		Refreshes:             e.Refreshes,
	}
	if m.ClockOffset != nil {
		ms := m.ClockOffset.Milliseconds()
		s.ClockOffsetMS = &ms
	}
	for _, p := range m.Periods {
		ps := PeriodSummary{
			ID:             p.ID,
			Start:          finite(p.Start),
			End:            finitePtr(p.End),
			Duration:       finitePtr(p.Duration),
			AdaptationSets: len(p.AdaptationSets),
		}
		if p.XLink != nil {
			ps.XLinkURL = p.XLink.URL
		}
		s.Periods = append(s.Periods, ps)
	}
	for _, w := range e.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	return s
}

// finite returns nil for NaN and infinities, which encoding/json rejects.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func finitePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return finite(*v)
}
