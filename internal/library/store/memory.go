package store

import (
	"context"
	"fmt"
	"sync"

	"libreg/internal/library/models"
	id "libreg/pkg/domain"
	"libreg/pkg/platform/sentinel"
)

// InMemory stores libraries in process memory. Reads and writes copy the
// aggregate so callers never share state with the store.
type InMemory struct {
	mu        sync.RWMutex
	libraries map[id.LibraryID]*models.Library
	byURL     map[string]id.LibraryID
	nextRowID int64
}

// NewInMemory constructs an empty in-memory library store.
func NewInMemory() *InMemory {
	return &InMemory{
		libraries: make(map[id.LibraryID]*models.Library),
		byURL:     make(map[string]id.LibraryID),
	}
}

func (s *InMemory) FindByOPDSURL(_ context.Context, opdsURL string) (*models.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	libraryID, ok := s.byURL[opdsURL]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.libraries[libraryID].Clone(), nil
}

func (s *InMemory) FindByID(_ context.Context, libraryID id.LibraryID) (*models.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lib, ok := s.libraries[libraryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return lib.Clone(), nil
}

// Save writes the whole aggregate. New association rows are assigned IDs,
// which are also set on lib.
func (s *InMemory) Save(_ context.Context, lib *models.Library) error {
	if lib == nil {
		return fmt.Errorf("library is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byURL[lib.OPDSURL]; ok && owner != lib.ID {
		return fmt.Errorf("opds url %s: %w", lib.OPDSURL, sentinel.ErrConflict)
	}
	if previous, ok := s.libraries[lib.ID]; ok && previous.OPDSURL != lib.OPDSURL {
		delete(s.byURL, previous.OPDSURL)
	}

	for i := range lib.ServiceAreas {
		if lib.ServiceAreas[i].ID == 0 {
			s.nextRowID++
			lib.ServiceAreas[i].ID = s.nextRowID
		}
	}
	for i := range lib.CollectionSummaries {
		if lib.CollectionSummaries[i].ID == 0 {
			s.nextRowID++
			lib.CollectionSummaries[i].ID = s.nextRowID
		}
	}

	s.libraries[lib.ID] = lib.Clone()
	s.byURL[lib.OPDSURL] = lib.ID
	return nil
}
