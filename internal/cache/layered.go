package cache

import "time"

// LayeredStore combines the memory and sqlite layers: reads check memory
// first and promote sqlite hits; writes go to both.
type LayeredStore struct {
	memory Store
	disk   Store
}

// NewLayeredStore opens the sqlite store at path and fronts it with a
// memory layer.
func NewLayeredStore(path string, memoryTTL time.Duration) (*LayeredStore, error) {
	disk, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return &LayeredStore{
		memory: NewMemoryStore(memoryTTL),
		disk:   disk,
	}, nil
}

// Get implements Store.
func (s *LayeredStore) Get(docID, unitText, model string) ([]byte, bool) {
	if val, found := s.memory.Get(docID, unitText, model); found {
		return val, true
	}
	if val, found := s.disk.Get(docID, unitText, model); found {
		_ = s.memory.Put(docID, unitText, model, val)
		return val, true
	}
	return nil, false
}

// Put implements Store. The durable write is authoritative; a memory
// write cannot fail.
func (s *LayeredStore) Put(docID, unitText, model string, response []byte) error {
	if err := s.disk.Put(docID, unitText, model, response); err != nil {
		return err
	}
	return s.memory.Put(docID, unitText, model, response)
}

// Close implements Store.
func (s *LayeredStore) Close() error {
	_ = s.memory.Close()
	return s.disk.Close()
}
