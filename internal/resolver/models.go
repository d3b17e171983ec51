package resolver

import (
	"time"

	"github.com/google/uuid"
)

// ManifestType is the MPD@type attribute.
type ManifestType string

const (
	TypeStatic  ManifestType = "static"
	TypeDynamic ManifestType = "dynamic"
)

// XLinkActuate is the xlink:actuate attribute of a Period.
type XLinkActuate string

const (
	ActuateOnLoad    XLinkActuate = "onLoad"
	ActuateOnRequest XLinkActuate = "onRequest"
)

// ResolveToZero is the xlink:href value that removes the element without a fetch.
const ResolveToZero = "urn:mpeg:dash:resolve-to-zero:2013"

// ManifestIR is the tokenized MPD tree. Durations and dates are in seconds;
// dates are seconds since the Unix epoch.
type ManifestIR struct {
	ID                         string
	Type                       ManifestType
	Profiles                   string
	Duration                   *float64
	MinimumUpdatePeriod        *float64
	AvailabilityStartTime      *float64
	PublishTime                *float64
	SuggestedPresentationDelay *float64
	MaxSegmentDuration         *float64
	TimeShiftBufferDepth       *float64

	Periods            []PeriodIR
	UTCTimings         []Descriptor
	BaseURLs           []BaseURLIR
	ContentProtections []ContentProtectionIR
	Locations          []string
}

// IsDynamic reports whether the manifest describes ongoing content.
func (m *ManifestIR) IsDynamic() bool {
	return m.Type == TypeDynamic
}

// Descriptor is a generic schemeIdUri/value pair such as UTCTiming.
type Descriptor struct {
	SchemeIDURI string
	Value       string
}

// BaseURLIR is a declared BaseURL element.
type BaseURLIR struct {
	URL             string
	ServiceLocation string
}

// ContentProtectionIR is a declared ContentProtection element. RefID marks a
// record that other records may point at through Ref.
type ContentProtectionIR struct {
	SchemeIDURI string
	Value       string
	DefaultKID  string
	RefID       string
	Ref         string
}

// PeriodIR is either a described period or a placeholder carrying an xlink.
// Key identifies the node for the duration of a resolution session; a zero
// Key is assigned when the session starts.
type PeriodIR struct {
	Key          uuid.UUID
	ID           string
	Start        *float64
	Duration     *float64
	XLinkHref    string
	XLinkActuate XLinkActuate

	BaseURLs       []BaseURLIR
	AdaptationSets []AdaptationSetIR
}

// IsOnLoadLink reports whether the period must be replaced by fetching its
// xlink before resolution completes.
func (p PeriodIR) IsOnLoadLink() bool {
	return p.XLinkHref != "" && p.XLinkActuate == ActuateOnLoad
}

// AdaptationSetIR is the part of an AdaptationSet the period parser needs.
type AdaptationSetIR struct {
	ID                 string
	ContentType        string
	MimeType           string
	Representations    int
	ContentProtections []ContentProtectionIR
	Timeline           *TimelineIR
}

// TimelineIR describes segment addressing of an adaptation set, either as an
// explicit SegmentTimeline (Entries) or as a fixed SegmentDuration.
type TimelineIR struct {
	Timescale              uint64
	PresentationTimeOffset uint64
	StartNumber            uint64
	SegmentDuration        uint64
	Entries                []TimelineEntry
}

// TimelineEntry is one S element. A negative R repeats until the next entry
// or the end of the period.
type TimelineEntry struct {
	T *uint64
	D uint64
	R int
}

// Args are supplied by the caller when a resolution session starts.
// Monotonic timestamps are offsets from the resolver clock's origin.
type Args struct {
	ExternalClockOffset  *time.Duration
	ManifestReceivedTime *time.Duration
	ReferenceDateTime    *float64
	PreviousManifest     *Manifest
	SourceURL            string
}

// Provenance records where a period produced by an xlink came from.
type Provenance struct {
	URL        string
	SentAt     *time.Duration
	ReceivedAt *time.Duration
}

// BaseURL is a resolved base URL.
type BaseURL struct {
	URL             string
	ServiceLocation string
}

// ContentProtection is a key-system record after reference resolution.
type ContentProtection struct {
	SchemeIDURI string
	Value       string
	DefaultKID  string
	Ref         string
}

// AdaptationSet summarizes a parsed adaptation set and the positions its
// segments make available.
type AdaptationSet struct {
	ID                 string
	ContentType        string
	MimeType           string
	Representations    int
	ContentProtections []*ContentProtection
	FirstPosition      *float64
	LastPosition       *float64
}

// Period is a parsed period.
type Period struct {
	Key            uuid.UUID
	ID             string
	Start          float64
	End            *float64
	Duration       *float64
	BaseURLs       []BaseURL
	AdaptationSets []AdaptationSet
	XLink          *Provenance

	MinimumSafePosition   *float64
	MaximumSafePosition   *float64
	MaximumUnsafePosition *float64
}

// MaximumTimeData describes the upper edge of the playable window at Time.
type MaximumTimeData struct {
	IsLinear            bool
	MaximumSafePosition float64
	LivePosition        *float64
	Time                time.Duration
}

// TimeBounds is the playable time window.
type TimeBounds struct {
	MinimumSafePosition *float64
	TimeshiftDepth      *float64
	MaximumTimeData     MaximumTimeData
}

// Manifest is a fully resolved manifest.
type Manifest struct {
	Periods                    []Period
	AvailabilityStartTime      float64
	ClockOffset                *time.Duration
	IsDynamic                  bool
	IsLive                     bool
	IsLastPeriodKnown          bool
	PublishTime                *float64
	SuggestedPresentationDelay *float64
	Profiles                   string
	TimeBounds                 TimeBounds
	// Lifetime is the refresh interval in seconds, nil when the manifest
	// never needs refreshing.
	Lifetime *float64
	URIs     []string
}

// PeriodByID returns the period with the given ID.
func (m *Manifest) PeriodByID(id string) (Period, bool) {
	if m == nil {
		return Period{}, false
	}
	for _, p := range m.Periods {
		if p.ID == id {
			return p, true
		}
	}
	return Period{}, false
}

func ptr[T any](v T) *T {
	return &v
}
