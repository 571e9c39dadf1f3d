package storage

import (
	"errors"
	"sync"

	"github.com/lehigh-university-libraries/gallery/internal/models"
)

var ErrMetadataNotFound = errors.New("metadata not found")

// MetadataStore persists per-image metadata.
type MetadataStore interface {
	Get(id string) (models.ImageMetadata, error)
	Set(meta models.ImageMetadata) error
	Delete(id string) error
	Close() error
}

type MemoryMetadata struct {
	entries map[string]models.ImageMetadata
	mu      sync.RWMutex
}

func NewMemoryMetadata() *MemoryMetadata {
	return &MemoryMetadata{
		entries: make(map[string]models.ImageMetadata),
	}
}

func (s *MemoryMetadata) Get(id string) (models.ImageMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.entries[id]
	if !ok {
		return models.ImageMetadata{}, ErrMetadataNotFound
	}
	return meta, nil
}

func (s *MemoryMetadata) Set(meta models.ImageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[meta.ID] = meta
	return nil
}

func (s *MemoryMetadata) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryMetadata) Close() error {
	return nil
}
