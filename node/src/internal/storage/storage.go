package storage

import (
	"sync"
	"sync/atomic"
)

// MemStore is the authoritative in-memory mapping. A single RWMutex guards the
// map: gets share the read lock, mutations take the write lock.
type MemStore struct {
	mutex sync.RWMutex
	data  map[string]string

	reads   atomic.Int64
	writes  atomic.Int64
	deletes atomic.Int64
	batches atomic.Int64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]string),
	}
}

func (s *MemStore) Get(key string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	s.reads.Add(1)
	value, found := s.data[key]
	return value, found
}

// Set upserts unconditionally
func (s *MemStore) Set(key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = value
	s.writes.Add(1)
	return nil
}

// Delete removes key if present. Deleting an absent key is not an error.
func (s *MemStore) Delete(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.data, key)
	s.deletes.Add(1)
	return nil
}

// BatchPut applies pairs in order inside one critical section, so readers
// never observe part of a batch.
func (s *MemStore) BatchPut(pairs []Pair) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, p := range pairs {
		s.data[p.Key] = p.Value
	}
	s.writes.Add(int64(len(pairs)))
	s.batches.Add(1)
	return nil
}

func (s *MemStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}

// Snapshot returns a copy of the whole mapping taken under the read lock
func (s *MemStore) Snapshot() map[string]string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make(map[string]string, len(s.data))
	for k, v := range s.data {
		result[k] = v
	}
	return result
}

// Replace swaps the whole mapping for a copy of data
func (s *MemStore) Replace(data map[string]string) {
	fresh := make(map[string]string, len(data))
	for k, v := range data {
		fresh[k] = v
	}

	s.mutex.Lock()
	s.data = fresh
	s.mutex.Unlock()
}

// GetMetrics returns the current storage counters
func (s *MemStore) GetMetrics() *StorageMetrics {
	return &StorageMetrics{
		TotalKeys:   int64(s.Len()),
		ReadCount:   s.reads.Load(),
		WriteCount:  s.writes.Load(),
		DeleteCount: s.deletes.Load(),
		BatchCount:  s.batches.Load(),
	}
}
