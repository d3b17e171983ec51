package resolver

import (
	"time"

	"github.com/google/uuid"
)

// Clock provides the two time sources the resolver needs: a monotonic
// timestamp used with server clock offsets, and the local wall clock used
// when no offset is known.
type Clock interface {
	Monotonic() time.Duration
	Now() time.Time
}

type systemClock struct {
	origin time.Time
}

// SystemClock returns a Clock whose monotonic origin is the moment of the call.
func SystemClock() Clock {
	return systemClock{origin: time.Now()}
}

func (c systemClock) Monotonic() time.Duration { return time.Since(c.origin) }
func (c systemClock) Now() time.Time           { return time.Now() }

// BoundsConfig configures a bounds calculator for one resolution.
type BoundsConfig struct {
	AvailabilityStartTime float64
	IsDynamic             bool
	TimeShiftBufferDepth  *float64
	ServerTimestampOffset *time.Duration
	Clock                 Clock
}

// Bounds estimates the edges of the available content. Period parsers feed it
// the last position they learn about.
type Bounds interface {
	EstimatedLiveEdge() (float64, bool)
	EstimatedMinimumPosition() (float64, bool)
	EstimatedMaximumPosition() (float64, bool)
	SetLastPosition(pos float64, at time.Duration)
	LastPosition() (float64, bool)
}

// BaseURLResolver resolves declared base URLs against inherited ones.
type BaseURLResolver interface {
	Resolve(inherited []BaseURL, declared []BaseURLIR) ([]BaseURL, []error)
}

// ProtectionRegistry accumulates content-protection records across periods
// and resolves references between them once every period is parsed.
type ProtectionRegistry interface {
	AddReferences(records []ContentProtectionIR) error
	Add(record ContentProtectionIR) (*ContentProtection, error)
	Finalize() []error
}

// PeriodContext is the manifest-level information a period parser receives.
type PeriodContext struct {
	AvailabilityStartTime float64
	BaseURLs              []BaseURL
	ClockOffset           *time.Duration
	Duration              *float64
	IsDynamic             bool
	Profiles              string
	ReceivedTime          *time.Duration
	TimeShiftBufferDepth  *float64
	Previous              *Manifest

	Bounds     Bounds
	BaseURLRes BaseURLResolver
	Protection ProtectionRegistry
	Provenance func(key uuid.UUID) (Provenance, bool)
}

// PeriodParser turns resolved period nodes into parsed periods. Returned
// errors are warnings; they never abort resolution.
type PeriodParser interface {
	ParsePeriods(periods []PeriodIR, ctx PeriodContext) ([]Period, []error)
}

// PeriodParserFunc adapts a function to PeriodParser.
type PeriodParserFunc func(periods []PeriodIR, ctx PeriodContext) ([]Period, []error)

// ParsePeriods implements PeriodParser.
func (f PeriodParserFunc) ParsePeriods(periods []PeriodIR, ctx PeriodContext) ([]Period, []error) {
	return f(periods, ctx)
}

// Collaborators are the components the resolver delegates to. All fields are
// required.
type Collaborators struct {
	Periods       PeriodParser
	NewBounds     func(BoundsConfig) Bounds
	BaseURLs      BaseURLResolver
	NewProtection func() ProtectionRegistry
}

func (c Collaborators) complete() bool {
	return c.Periods != nil && c.NewBounds != nil && c.BaseURLs != nil && c.NewProtection != nil
}
