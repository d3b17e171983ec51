package orchestrator

import (
	"errors"
	"slices"
	"sync"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// resolved manifest entries.
type Repository interface {
	// Save stores entry, replacing any earlier resolution of the same manifest.
	Save(entry *Entry) error

	// Get returns a copy of the entry with the given ID.
	Get(id ManifestID) (*Entry, bool)

	// List returns copies of all entries ordered by URL.
	List() []*Entry

	// Delete removes an entry. Deleting an unknown ID returns
	// ErrManifestNotFound.
	Delete(id ManifestID) error

	// TrackedCount returns the number of stored entries. Used for metrics.
	TrackedCount() int
}

var (
	// ErrManifestNotFound is returned for an ID that is not tracked.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrInvalidEntry is returned when saving an entry without an ID or
	// manifest.
	ErrInvalidEntry = errors.New("invalid manifest entry")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Save implements Repository.Save.
func (r *InMemoryRepository) Save(entry *Entry) error {
	if entry == nil || entry.ID == "" || entry.Manifest == nil {
		return ErrInvalidEntry
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.SetEntry(copyEntry(entry))
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id ManifestID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.store.GetEntry(id)
	if !ok {
		return nil, false
	}
	return copyEntry(e), true
}

// List implements Repository.List. The store already yields URL order.
func (r *InMemoryRepository) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListEntryIDs()
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.store.GetEntry(id); ok {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// Delete implements Repository.Delete.
func (r *InMemoryRepository) Delete(id ManifestID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.GetEntry(id); !ok {
		return ErrManifestNotFound
	}
	r.store.DeleteEntry(id)
	return nil
}

// TrackedCount implements Repository.TrackedCount.
func (r *InMemoryRepository) TrackedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Len()
}

// copyEntry returns a shallow copy; the resolved manifest is never mutated
// after resolution, so sharing it is safe.
func copyEntry(e *Entry) *Entry {
	c := *e
	c.Warnings = slices.Clone(e.Warnings)
	return &c
}
