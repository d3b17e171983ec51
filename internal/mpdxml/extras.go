package mpdxml

import (
	"strings"

	m "github.com/Eyevinn/dash-mpd/mpd"
	"github.com/Eyevinn/dash-mpd/xml"

	"dash-resolver/internal/resolver"
)

// The extras structs pick up the parts of the document the resolver relies
// on beyond what the MPD model decodes: xlink attributes with or without a
// declared namespace, BaseURL serviceLocation, Location, and
// ContentProtection records with their refId/ref links and prefixed
// default_KID.

type mpdExtras struct {
	MaxSegmentDuration *m.Duration     `xml:"maxSegmentDuration,attr"`
	BaseURLs           []baseURLXML    `xml:"BaseURL"`
	ContentProtections []protectionXML `xml:"ContentProtection"`
	Locations          []string        `xml:"Location"`
	Periods            []periodExtras  `xml:"Period"`
}

func (e mpdExtras) baseURLs() []resolver.BaseURLIR {
	return convertBaseURLs(e.BaseURLs)
}

type periodExtras struct {
	Attrs          []xml.Attr           `xml:",any,attr"`
	BaseURLs       []baseURLXML         `xml:"BaseURL"`
	AdaptationSets []adaptationSetExtra `xml:"AdaptationSet"`
}

type adaptationSetExtra struct {
	ContentProtections []protectionXML `xml:"ContentProtection"`
}

// xlink returns href and actuate; actuate defaults to onRequest.
func (e periodExtras) xlink() (string, resolver.XLinkActuate) {
	var href string
	actuate := resolver.ActuateOnRequest
	for _, a := range e.Attrs {
		if a.Name.Space != xlinkNS && a.Name.Space != "xlink" {
			continue
		}
		switch a.Name.Local {
		case "href":
			href = strings.TrimSpace(a.Value)
		case "actuate":
			if strings.TrimSpace(a.Value) == string(resolver.ActuateOnLoad) {
				actuate = resolver.ActuateOnLoad
			}
		}
	}
	return href, actuate
}

func (e periodExtras) baseURLs() []resolver.BaseURLIR {
	return convertBaseURLs(e.BaseURLs)
}

type baseURLXML struct {
	Value           string `xml:",chardata"`
	ServiceLocation string `xml:"serviceLocation,attr"`
}

func convertBaseURLs(in []baseURLXML) []resolver.BaseURLIR {
	if len(in) == 0 {
		return nil
	}
	out := make([]resolver.BaseURLIR, 0, len(in))
	for _, b := range in {
		out = append(out, resolver.BaseURLIR{
			URL:             strings.TrimSpace(b.Value),
			ServiceLocation: b.ServiceLocation,
		})
	}
	return out
}

type protectionXML struct {
	SchemeIDURI string     `xml:"schemeIdUri,attr"`
	Value       string     `xml:"value,attr"`
	RefID       string     `xml:"refId,attr"`
	Ref         string     `xml:"ref,attr"`
	Attrs       []xml.Attr `xml:",any,attr"`
}

func (p protectionXML) ir() resolver.ContentProtectionIR {
	out := resolver.ContentProtectionIR{
		SchemeIDURI: strings.TrimSpace(p.SchemeIDURI),
		Value:       p.Value,
		RefID:       p.RefID,
		Ref:         p.Ref,
	}
	for _, a := range p.Attrs {
		if a.Name.Local == "default_KID" {
			out.DefaultKID = a.Value
		}
	}
	return out
}
