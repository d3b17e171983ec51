package orchestrator

import (
	"cmp"
	"slices"
)

// Store is the persistence abstraction for manifest entries.
// The Repository uses Store for all reads and writes and relies on it for
// ordering; callers of Repository do not need to know which Store is used.
type Store interface {
	GetEntry(id ManifestID) (*Entry, bool)
	SetEntry(e *Entry)
	DeleteEntry(id ManifestID)
	// ListEntryIDs returns IDs ordered by manifest URL, then ID.
	ListEntryIDs() []ManifestID
	Len() int
}

// InMemoryStore is an in-memory implementation of Store. It keeps a URL
// index next to the entry map so listings come out ordered without a sort.
type InMemoryStore struct {
	entries map[ManifestID]*Entry
	byURL   []ManifestID
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[ManifestID]*Entry),
	}
}

// GetEntry implements Store.GetEntry.
func (s *InMemoryStore) GetEntry(id ManifestID) (*Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// SetEntry implements Store.SetEntry. Replacing an entry whose URL changed
// moves it in the index.
func (s *InMemoryStore) SetEntry(e *Entry) {
	if old, ok := s.entries[e.ID]; ok {
		s.unindex(old)
	}
	s.entries[e.ID] = e
	i, _ := s.search(e.URL, e.ID)
	s.byURL = slices.Insert(s.byURL, i, e.ID)
}

// DeleteEntry implements Store.DeleteEntry.
func (s *InMemoryStore) DeleteEntry(id ManifestID) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.unindex(e)
	delete(s.entries, id)
}

// ListEntryIDs implements Store.ListEntryIDs.
func (s *InMemoryStore) ListEntryIDs() []ManifestID {
	return slices.Clone(s.byURL)
}

// Len implements Store.Len.
func (s *InMemoryStore) Len() int {
	return len(s.entries)
}

func (s *InMemoryStore) unindex(e *Entry) {
	if i, found := s.search(e.URL, e.ID); found {
		s.byURL = slices.Delete(s.byURL, i, i+1)
	}
}

func (s *InMemoryStore) search(url string, id ManifestID) (int, bool) {
	return slices.BinarySearchFunc(s.byURL, id, func(have, want ManifestID) int {
		return cmp.Or(
			cmp.Compare(s.entries[have].URL, url),
			cmp.Compare(have, want),
		)
	})
}
