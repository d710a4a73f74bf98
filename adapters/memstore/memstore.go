// Package memstore provides in-memory implementations of the key-value and
// blob store collaborators. Used by tests and by ephemeral single-process
// runs; values survive process restarts only when a durable adapter such as
// sqlitestore is used instead.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/flowscribe/flowscribe"
)

func New() *Store {
	return &Store{
		kv:        make(map[string][]byte),
		snapshots: make(map[string][][]byte),
	}
}

var _ flowscribe.KVStore = (*Store)(nil)

// Store is the in-memory key-value collaborator. Writes are per-key atomic
// under one mutex; Snapshots retains every value ever written to a key so
// tests can assert on persistence ordering.
type Store struct {
	mu sync.Mutex

	kv        map[string][]byte
	snapshots map[string][][]byte
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.kv[key]
	if !ok {
		return nil, flowscribe.ErrKeyNotFound
	}

	// Return a copy so mutations don't reach the stored value.
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.kv[key] = stored
	s.snapshots[key] = append(s.snapshots[key], stored)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.kv[key]; !ok {
		return flowscribe.ErrKeyNotFound
	}
	delete(s.kv, key)
	return nil
}

// Snapshots returns every value written to the key in write order.
func (s *Store) Snapshots(key string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[key]
}

func NewBlobStore() *BlobStore {
	return &BlobStore{
		blobs: make(map[string][]byte),
	}
}

var _ flowscribe.BlobStore = (*BlobStore)(nil)

// BlobStore is the in-memory blob collaborator for large screenshot data.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, flowscribe.ErrBlobNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.blobs[key] = stored
	return nil
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return flowscribe.ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *BlobStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			delete(s.blobs, k)
		}
	}
	return nil
}

// Len reports the number of stored blobs, for tests.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
