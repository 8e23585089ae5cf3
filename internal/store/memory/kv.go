package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// KeyValueStore is an in-memory store.KeyValueStore holding JSON values.
type KeyValueStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ store.KeyValueStore = (*KeyValueStore)(nil)

// NewKeyValueStore creates an empty key-value store.
func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{values: make(map[string][]byte)}
}

// Get decodes the value at key into dest.
func (s *KeyValueStore) Get(_ context.Context, key string, dest any) (bool, error) {
	s.mu.RLock()
	data, ok := s.values[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, domain.Persistence("decode "+key, err)
	}
	return true, nil
}

// Set encodes value at key.
func (s *KeyValueStore) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return domain.Persistence("encode "+key, err)
	}

	s.mu.Lock()
	s.values[key] = data
	s.mu.Unlock()

	return nil
}
