// Package cache stores raw extraction responses so reprocessing a corpus
// is idempotent and skips network calls. Keys are derived from the unit
// text content, not the unit position, so a re-segmented document still
// hits the cache for unchanged text.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Store is the interface for extraction response caches.
type Store interface {
	// Get returns the cached raw response for (docID, unitText, model),
	// or false when absent.
	Get(docID, unitText, model string) ([]byte, bool)

	// Put upserts the raw response. Writes to the same key are
	// last-writer-wins; responses for a key are interchangeable.
	Put(docID, unitText, model string, response []byte) error

	// Close releases underlying resources.
	Close() error
}

// Fingerprint returns the truncated content hash used as the key
// component for a unit's text.
func Fingerprint(unitText string) string {
	sum := sha256.Sum256([]byte(unitText))
	return hex.EncodeToString(sum[:])[:16]
}
