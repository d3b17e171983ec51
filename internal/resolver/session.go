package resolver

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// provenanceTable maps period keys to the xlink fetch that produced them.
// It belongs to a single session.
type provenanceTable map[uuid.UUID]Provenance

func (t provenanceTable) lookup(key uuid.UUID) (Provenance, bool) {
	p, ok := t[key]
	return p, ok
}

// session is the state threaded through one resolution. Transitions never
// modify a session in place; they return an updated copy so a continuation
// always sees the snapshot it was created with.
type session struct {
	root    *ManifestIR
	args    Args
	periods []PeriodIR

	clockOffset    *time.Duration
	clockAttempted bool

	provenance provenanceTable
	warnings   []error
	rounds     int
}

func newSession(root *ManifestIR, args Args) session {
	periods := slices.Clone(root.Periods)
	assignKeys(periods)
	return session{
		root:        root,
		args:        args,
		periods:     periods,
		clockOffset: args.ExternalClockOffset,
		provenance:  provenanceTable{},
	}
}

// assignKeys gives every period without an identity a fresh one.
func assignKeys(periods []PeriodIR) {
	for i := range periods {
		if periods[i].Key == uuid.Nil {
			periods[i].Key = uuid.New()
		}
	}
}

func (s session) withClockOffset(offset time.Duration) session {
	s.clockOffset = &offset
	return s
}

func (s session) withClockAttempted() session {
	s.clockAttempted = true
	return s
}

func (s session) withWarnings(errs ...error) session {
	if len(errs) == 0 {
		return s
	}
	w := make([]error, 0, len(s.warnings)+len(errs))
	w = append(w, s.warnings...)
	s.warnings = append(w, errs...)
	return s
}

// withPeriods swaps in a new period list and provenance table.
func (s session) withPeriods(periods []PeriodIR, prov provenanceTable) session {
	s.periods = periods
	s.provenance = prov
	return s
}

func (s session) cloneProvenance() provenanceTable {
	if s.provenance == nil {
		return provenanceTable{}
	}
	return maps.Clone(s.provenance)
}
