// Package assetstore provides publish.Store implementations: an HTTP client
// for the pubcover asset server and an in-memory store for tests and dry runs.
package assetstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eringen/pubcover/publish"
)

type memoryAsset struct {
	data      []byte
	meta      publish.Metadata
	updatedAt time.Time
}

// MemoryStore keeps assets in a map. It counts calls so tests can assert
// that an upload was skipped.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string]memoryAsset
	gets   int
	puts   int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[string]memoryAsset)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (publish.Record, error) {
	if err := ctx.Err(); err != nil {
		return publish.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	a, ok := s.assets[id]
	if !ok {
		return publish.Record{}, publish.ErrNotFound
	}
	return publish.Record{
		ID:        id,
		Metadata:  copyMeta(a.meta),
		Size:      int64(len(a.data)),
		UpdatedAt: a.updatedAt,
	}, nil
}

func (s *MemoryStore) Put(ctx context.Context, id string, data []byte, meta publish.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.assets[id] = memoryAsset{
		data:      append([]byte(nil), data...),
		meta:      copyMeta(meta),
		updatedAt: time.Now().UTC(),
	}
	return nil
}

// Data returns a copy of the bytes stored at id.
func (s *MemoryStore) Data(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), a.data...), true
}

// IDs returns the stored identifiers in sorted order.
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.assets))
	for id := range s.assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Gets returns the number of Get calls made so far.
func (s *MemoryStore) Gets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gets
}

// Puts returns the number of Put calls made so far.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

func copyMeta(m publish.Metadata) publish.Metadata {
	out := make(publish.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
