package record

// Store exposes record lookup for the attachment picker and the dev backend.
type Store interface {
	List() []Record
	FindByID(id string) (Record, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Record
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied records.
func NewMemoryStore(items []Record) *MemoryStore {
	return &MemoryStore{items: append([]Record(nil), items...)}
}

// List returns the records in insertion order.
func (s *MemoryStore) List() []Record {
	return append([]Record(nil), s.items...)
}

// FindByID looks up a record by identifier.
func (s *MemoryStore) FindByID(id string) (Record, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Record{}, false
}
