package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"dash-resolver/internal/resolver"
)

// ManifestID identifies a tracked manifest. It is derived from the manifest
// URL so that repeated submissions of one URL share an entry.
type ManifestID string

// NewManifestID returns the ID of the manifest at rawURL.
func NewManifestID(rawURL string) ManifestID {
	sum := sha256.Sum256([]byte(rawURL))
	return ManifestID(hex.EncodeToString(sum[:8]))
}

// Entry is the latest resolution of a tracked manifest.
type Entry struct {
	ID         ManifestID
	URL        string
	Manifest   *resolver.Manifest
	Warnings   []error
	ResolvedAt time.Time
	// Refreshes counts resolutions after the first one.
	Refreshes int
}
