// Package mpdxml tokenizes MPD documents and xlink payloads into the
// resolver's intermediate representation.
package mpdxml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	m "github.com/Eyevinn/dash-mpd/mpd"
	"github.com/Eyevinn/dash-mpd/xml"
	"github.com/google/uuid"

	"dash-resolver/internal/resolver"
)

var (
	ErrMalformed    = errors.New("mpdxml: malformed document")
	ErrInvalidValue = errors.New("mpdxml: invalid attribute value")
)

const xlinkNS = "http://www.w3.org/1999/xlink"

// Parse tokenizes a complete MPD document. Every period receives a fresh key.
func Parse(data []byte) (*resolver.ManifestIR, error) {
	doc, err := m.MPDFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	var ext mpdExtras
	if err := xml.Unmarshal(data, &ext); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	ir := &resolver.ManifestIR{
		ID:                         doc.Id,
		Type:                       resolver.TypeStatic,
		Profiles:                   string(doc.Profiles),
		Duration:                   seconds(doc.MediaPresentationDuration),
		MinimumUpdatePeriod:        seconds(doc.MinimumUpdatePeriod),
		SuggestedPresentationDelay: seconds(doc.SuggestedPresentationDelay),
		TimeShiftBufferDepth:       seconds(doc.TimeShiftBufferDepth),
		MaxSegmentDuration:         seconds(ext.MaxSegmentDuration),
		BaseURLs:                   ext.baseURLs(),
	}
	if doc.Type != nil && *doc.Type == string(resolver.TypeDynamic) {
		ir.Type = resolver.TypeDynamic
	}

	if ir.AvailabilityStartTime, err = dateTime("availabilityStartTime", doc.AvailabilityStartTime); err != nil {
		return nil, err
	}
	if ir.PublishTime, err = dateTime("publishTime", doc.PublishTime); err != nil {
		return nil, err
	}

	for _, loc := range ext.Locations {
		if v := strings.TrimSpace(loc); v != "" {
			ir.Locations = append(ir.Locations, v)
		}
	}
	for _, ut := range doc.UTCTimings {
		if ut == nil {
			continue
		}
		ir.UTCTimings = append(ir.UTCTimings, resolver.Descriptor{
			SchemeIDURI: strings.TrimSpace(string(ut.SchemeIdUri)),
			Value:       strings.TrimSpace(ut.Value),
		})
	}
	for _, cp := range ext.ContentProtections {
		ir.ContentProtections = append(ir.ContentProtections, cp.ir())
	}

	ir.Periods = make([]resolver.PeriodIR, 0, len(doc.Periods))
	for i, p := range doc.Periods {
		var pe periodExtras
		if i < len(ext.Periods) {
			pe = ext.Periods[i]
		}
		ir.Periods = append(ir.Periods, convertPeriod(p, pe))
	}
	return ir, nil
}

// ParsePeriods tokenizes an xlink payload: one or more Period elements,
// either bare or inside any wrapping element.
func ParsePeriods(data []byte) ([]resolver.PeriodIR, error) {
	var periods []*m.Period
	err := eachPeriod(data, func(d *xml.Decoder, se xml.StartElement) error {
		var p m.Period
		if err := d.DecodeElement(&p, &se); err != nil {
			return err
		}
		periods = append(periods, &p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var extras []periodExtras
	err = eachPeriod(data, func(d *xml.Decoder, se xml.StartElement) error {
		var pe periodExtras
		if err := d.DecodeElement(&pe, &se); err != nil {
			return err
		}
		extras = append(extras, pe)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	out := make([]resolver.PeriodIR, 0, len(periods))
	for i, p := range periods {
		out = append(out, convertPeriod(p, extras[i]))
	}
	return out, nil
}

// eachPeriod calls fn for every Period start element in document order.
func eachPeriod(data []byte, fn func(*xml.Decoder, xml.StartElement) error) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Period" {
			if err := fn(d, se); err != nil {
				return err
			}
		}
	}
}

func convertPeriod(p *m.Period, ext periodExtras) resolver.PeriodIR {
	out := resolver.PeriodIR{Key: uuid.New()}
	href, actuate := ext.xlink()
	out.XLinkHref = href
	out.XLinkActuate = actuate
	out.BaseURLs = ext.baseURLs()
	if p == nil {
		return out
	}

	out.ID = p.Id
	out.Start = seconds(p.Start)
	out.Duration = seconds(p.Duration)
	for i, as := range p.AdaptationSets {
		if as == nil {
			continue
		}
		var ae adaptationSetExtra
		if i < len(ext.AdaptationSets) {
			ae = ext.AdaptationSets[i]
		}
		out.AdaptationSets = append(out.AdaptationSets, convertAdaptationSet(as, ae))
	}
	return out
}

func convertAdaptationSet(as *m.AdaptationSetType, ext adaptationSetExtra) resolver.AdaptationSetIR {
	out := resolver.AdaptationSetIR{
		ContentType:     string(as.ContentType),
		MimeType:        as.MimeType,
		Representations: len(as.Representations),
	}
	if as.Id != nil {
		out.ID = fmt.Sprint(*as.Id)
	}
	for _, cp := range ext.ContentProtections {
		out.ContentProtections = append(out.ContentProtections, cp.ir())
	}
	out.Timeline = convertTemplate(as.SegmentTemplate)
	return out
}

func convertTemplate(st *m.SegmentTemplateType) *resolver.TimelineIR {
	if st == nil {
		return nil
	}
	tl := &resolver.TimelineIR{Timescale: uint64(st.GetTimescale())}
	if st.PresentationTimeOffset != nil {
		tl.PresentationTimeOffset = *st.PresentationTimeOffset
	}
	if st.StartNumber != nil {
		tl.StartNumber = uint64(*st.StartNumber)
	}
	if st.Duration != nil {
		tl.SegmentDuration = uint64(*st.Duration)
	}
	if st.SegmentTimeline != nil {
		for _, s := range st.SegmentTimeline.S {
			if s == nil {
				continue
			}
			e := resolver.TimelineEntry{D: s.D, R: int(s.R)}
			if s.T != nil {
				t := *s.T
				e.T = &t
			}
			tl.Entries = append(tl.Entries, e)
		}
	}
	return tl
}

func seconds(d *m.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := time.Duration(*d).Seconds()
	return &s
}

func dateTime(attr string, dt m.DateTime) (*float64, error) {
	if strings.TrimSpace(string(dt)) == "" {
		return nil, nil
	}
	s, err := dt.ConvertToSeconds()
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, attr, dt, err)
	}
	return &s, nil
}
