package resolver

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// XLinkResult is the resolved payload for one requested xlink.
type XLinkResult struct {
	Periods    []PeriodIR
	Warnings   []error
	URL        string
	SentAt     *time.Duration
	ReceivedAt *time.Duration
}

type xlinkTarget struct {
	index int
	href  string
	key   uuid.UUID
}

// collectXLinks scans the whole period list for on-load placeholders.
// Duplicate hrefs are kept, one target per occurrence.
func collectXLinks(periods []PeriodIR) []xlinkTarget {
	var targets []xlinkTarget
	for i, p := range periods {
		if p.IsOnLoadLink() && p.XLinkHref != ResolveToZero {
			targets = append(targets, xlinkTarget{index: i, href: p.XLinkHref, key: p.Key})
		}
	}
	return targets
}

// dropResolvedToZero removes on-load placeholders pointing at the
// resolve-to-zero URN. No fetch is needed for them.
func dropResolvedToZero(s session) session {
	keep := func(p PeriodIR) bool {
		return !(p.IsOnLoadLink() && p.XLinkHref == ResolveToZero)
	}
	if !slices.ContainsFunc(s.periods, func(p PeriodIR) bool { return !keep(p) }) {
		return s
	}
	periods := make([]PeriodIR, 0, len(s.periods))
	for _, p := range s.periods {
		if keep(p) {
			periods = append(periods, p)
		}
	}
	return s.withPeriods(periods, s.provenance)
}

// spliceXLinks replaces each target placeholder with the periods resolved for
// it. Targets are processed from last to first so earlier indices stay valid.
func (r *Resolver) spliceXLinks(s session, targets []xlinkTarget, results []XLinkResult) (session, error) {
	if len(results) != len(targets) {
		return s, fmt.Errorf("%w: got %d results for %d links", ErrXLinkCountMismatch, len(results), len(targets))
	}

	periods := slices.Clone(s.periods)
	prov := s.cloneProvenance()
	var warnings []error
	for i := len(results) - 1; i >= 0; i-- {
		res := results[i]
		warnings = append(warnings, res.Warnings...)

		// Results may share period values (one payload served for duplicate
		// hrefs), so every spliced period gets its own key.
		produced := slices.Clone(res.Periods)
		for j := range produced {
			produced[j].Key = uuid.New()
		}
		url := res.URL
		if url == "" {
			url = targets[i].href
		}
		for _, p := range produced {
			prov[p.Key] = Provenance{URL: url, SentAt: res.SentAt, ReceivedAt: res.ReceivedAt}
		}
		idx := targets[i].index
		periods = slices.Replace(periods, idx, idx+1, produced...)
	}

	r.log.Debug("xlinks spliced",
		slog.Int("links", len(targets)),
		slog.Int("periods", len(periods)),
		slog.Int("round", s.rounds+1))

	s = s.withPeriods(periods, prov).withWarnings(warnings...)
	s.rounds++
	return s, nil
}
