// Package baseurl resolves MPD BaseURL elements against the URLs they inherit.
package baseurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"dash-resolver/internal/resolver"
)

// ErrInvalidBaseURL is reported for a declared BaseURL that cannot be parsed.
var ErrInvalidBaseURL = errors.New("baseurl: invalid BaseURL")

// Resolver implements resolver.BaseURLResolver.
type Resolver struct{}

// Resolve combines every inherited URL with every declared one. With nothing
// declared the inherited list is returned unchanged; with nothing inherited
// the declared URLs are used as they are.
func (Resolver) Resolve(inherited []resolver.BaseURL, declared []resolver.BaseURLIR) ([]resolver.BaseURL, []error) {
	if len(declared) == 0 {
		return inherited, nil
	}

	type ref struct {
		u   *url.URL
		loc string
	}
	var (
		refs     []ref
		warnings []error
	)
	for _, d := range declared {
		raw := strings.TrimSpace(d.URL)
		u, err := url.Parse(raw)
		if err != nil || raw == "" {
			warnings = append(warnings, fmt.Errorf("%w: %q", ErrInvalidBaseURL, d.URL))
			continue
		}
		refs = append(refs, ref{u: u, loc: d.ServiceLocation})
	}
	if len(refs) == 0 {
		return inherited, warnings
	}

	if len(inherited) == 0 {
		out := make([]resolver.BaseURL, 0, len(refs))
		for _, r := range refs {
			out = append(out, resolver.BaseURL{URL: r.u.String(), ServiceLocation: r.loc})
		}
		return out, warnings
	}

	out := make([]resolver.BaseURL, 0, len(inherited)*len(refs))
	for _, in := range inherited {
		base, err := url.Parse(in.URL)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%w: inherited %q", ErrInvalidBaseURL, in.URL))
			continue
		}
		for _, r := range refs {
			loc := r.loc
			if loc == "" {
				loc = in.ServiceLocation
			}
			out = append(out, resolver.BaseURL{URL: base.ResolveReference(r.u).String(), ServiceLocation: loc})
		}
	}
	return out, warnings
}
