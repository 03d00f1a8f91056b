package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process cache layer in front of the sqlite store.
// Unlike the durable layer it expires entries, bounding memory during
// long corpus runs.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a memory store whose entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(ttl, 10*time.Minute),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(docID, unitText, model string) ([]byte, bool) {
	if val, found := s.cache.Get(memKey(docID, unitText, model)); found {
		return val.([]byte), true
	}
	return nil, false
}

// Put implements Store.
func (s *MemoryStore) Put(docID, unitText, model string, response []byte) error {
	s.cache.Set(memKey(docID, unitText, model), response, gocache.DefaultExpiration)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

func memKey(docID, unitText, model string) string {
	return strings.Join([]string{docID, Fingerprint(unitText), model}, ":")
}
