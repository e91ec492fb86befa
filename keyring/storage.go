package keyring

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileIndexStateStore implements IndexStateStore using a JSON file. It backs
// local/dev deployments; a production server instead seeds the KeyStore from
// the swap database's MaxLocalPubkeyIndex and never calls CommitIndex through
// this store at all (the swap transaction that consumes an index is itself
// the durable record).
type FileIndexStateStore struct {
	filePath string
	index    uint32
	mu       sync.RWMutex
}

type indexStateFile struct {
	NextIndex uint32 `json:"next_index"`
}

// NewFileIndexStateStore creates a new file-based index store.
func NewFileIndexStateStore(filePath string) (*FileIndexStateStore, error) {
	store := &FileIndexStateStore{filePath: filePath}

	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load key index state: %w", err)
	}

	return store, nil
}

// CurrentIndex returns the next unused index.
func (s *FileIndexStateStore) CurrentIndex(_ context.Context) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index, nil
}

// CommitIndex persists index as the next unused index.
func (s *FileIndexStateStore) CommitIndex(_ context.Context, index uint32) error {
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	return s.save()
}

func (s *FileIndexStateStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var state indexStateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal key index state: %w", err)
	}

	s.index = state.NextIndex
	return nil
}

func (s *FileIndexStateStore) save() error {
	s.mu.RLock()
	state := indexStateFile{NextIndex: s.index}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key index state: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write key index state: %w", err)
	}

	return nil
}

// MemoryIndexStateStore implements IndexStateStore purely in memory, for
// tests that don't need state to survive the process.
type MemoryIndexStateStore struct {
	mu    sync.RWMutex
	index uint32
}

// NewMemoryIndexStateStore creates a new in-memory index store.
func NewMemoryIndexStateStore() *MemoryIndexStateStore {
	return &MemoryIndexStateStore{}
}

// CurrentIndex returns the next unused index.
func (s *MemoryIndexStateStore) CurrentIndex(_ context.Context) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index, nil
}

// CommitIndex persists index as the next unused index.
func (s *MemoryIndexStateStore) CommitIndex(_ context.Context, index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = index
	return nil
}
