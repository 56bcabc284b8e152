package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core"
)

// documentStore keeps reviewed documents in memory for download and export.
// Persistence belongs to the storage layer outside this service.
type documentRecord struct {
	ID       string
	Original []byte
	Result   *core.Result
}

type documentStore struct {
	mu   sync.RWMutex
	docs map[string]*documentRecord
}

func newDocumentStore() *documentStore {
	return &documentStore{docs: make(map[string]*documentRecord)}
}

func (s *documentStore) put(original []byte, result *core.Result) *documentRecord {
	rec := &documentRecord{
		ID:       uuid.New().String(),
		Original: original,
		Result:   result,
	}
	s.mu.Lock()
	s.docs[rec.ID] = rec
	s.mu.Unlock()
	return rec
}

func (s *documentStore) get(id string) (*documentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	return rec, ok
}
