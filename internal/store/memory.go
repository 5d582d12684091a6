package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. Used by default and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string][]byte),
	}
}

func (m *MemoryStore) Get(_ context.Context, collection, key string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Record{Key: key, Data: clone(data)}, nil
}

// GetAll returns records ordered by key.
func (m *MemoryStore) GetAll(_ context.Context, collection string) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0, len(m.collections[collection]))
	for key, data := range m.collections[collection] {
		records = append(records, Record{Key: key, Data: clone(data)})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records, nil
}

func (m *MemoryStore) Put(_ context.Context, collection string, record Record) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}

	key := record.Key
	if key == "" {
		key = newKey()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string][]byte)
		m.collections[collection] = coll
	}
	coll[key] = clone(record.Data)
	return key, nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, key string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][key]; !ok {
		return ErrNotFound
	}
	delete(m.collections[collection], key)
	return nil
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
