// Package protection collects ContentProtection records across a manifest
// and resolves the references between them.
package protection

import (
	"errors"
	"fmt"
	"sync"

	"dash-resolver/internal/resolver"
)

var (
	ErrSealed           = errors.New("protection: registry is sealed")
	ErrDuplicateRefID   = errors.New("protection: duplicate refId")
	ErrUnresolvedRef    = errors.New("protection: unresolved ref")
	ErrMissingSchemeURI = errors.New("protection: missing schemeIdUri")
)

type entry struct {
	record *resolver.ContentProtection
	ref    string
}

// Registry implements resolver.ProtectionRegistry. Records handed out by Add
// are completed in place by Finalize.
type Registry struct {
	mu      sync.Mutex
	sealed  bool
	targets map[string]resolver.ContentProtectionIR
	entries []entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{targets: make(map[string]resolver.ContentProtectionIR)}
}

// Factory adapts New to resolver.Collaborators.NewProtection.
func Factory() resolver.ProtectionRegistry {
	return New()
}

// AddReferences stores the records other records may point at. Records
// without a RefID are ignored.
func (r *Registry) AddReferences(records []resolver.ContentProtectionIR) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}

	var errs []error
	for _, rec := range records {
		if rec.RefID == "" {
			continue
		}
		if _, ok := r.targets[rec.RefID]; ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateRefID, rec.RefID))
			continue
		}
		r.targets[rec.RefID] = rec
	}
	return errors.Join(errs...)
}

// Add records a protection declared on an adaptation set. A record that is
// itself a reference target is registered as one too.
func (r *Registry) Add(rec resolver.ContentProtectionIR) (*resolver.ContentProtection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil, ErrSealed
	}
	if rec.SchemeIDURI == "" && rec.Ref == "" {
		return nil, ErrMissingSchemeURI
	}
	if rec.RefID != "" {
		if _, ok := r.targets[rec.RefID]; !ok {
			r.targets[rec.RefID] = rec
		}
	}

	cp := &resolver.ContentProtection{
		SchemeIDURI: rec.SchemeIDURI,
		Value:       rec.Value,
		DefaultKID:  rec.DefaultKID,
		Ref:         rec.Ref,
	}
	r.entries = append(r.entries, entry{record: cp, ref: rec.Ref})
	return cp, nil
}

// Finalize fills referencing records from their targets and seals the
// registry. Unresolved references are returned as warnings.
func (r *Registry) Finalize() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil
	}
	r.sealed = true

	var warnings []error
	for _, e := range r.entries {
		if e.ref == "" {
			continue
		}
		target, ok := r.targets[e.ref]
		if !ok {
			warnings = append(warnings, fmt.Errorf("%w: %q", ErrUnresolvedRef, e.ref))
			continue
		}
		if e.record.SchemeIDURI == "" {
			e.record.SchemeIDURI = target.SchemeIDURI
		}
		if e.record.Value == "" {
			e.record.Value = target.Value
		}
		if e.record.DefaultKID == "" {
			e.record.DefaultKID = target.DefaultKID
		}
	}
	return warnings
}
