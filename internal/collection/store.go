package collection

import (
	"sync"

	"github.com/lehigh-university-libraries/gallery/internal/models"
)

// Store is an ordered set of images keyed by ID. Insertion order is the only
// order it keeps.
type Store struct {
	images []models.Image
	index  map[string]int
	mu     sync.RWMutex
}

func New() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// InsertIfAbsent appends img unless an image with the same ID is present.
func (s *Store) InsertIfAbsent(img models.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[img.ID]; exists {
		return false
	}
	s.index[img.ID] = len(s.images)
	s.images = append(s.images, img)
	return true
}

// InsertAt inserts img at pos, clamped to the current bounds, unless the ID
// is already present.
func (s *Store) InsertAt(pos int, img models.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[img.ID]; exists {
		return false
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.images) {
		pos = len(s.images)
	}
	s.images = append(s.images, models.Image{})
	copy(s.images[pos+1:], s.images[pos:])
	s.images[pos] = img
	s.reindexFrom(pos)
	return true
}

// RemoveByID removes the image with the given ID. Removing an absent ID is a
// no-op.
func (s *Store) RemoveByID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, exists := s.index[id]
	if !exists {
		return false
	}
	delete(s.index, id)
	s.images = append(s.images[:pos], s.images[pos+1:]...)
	s.reindexFrom(pos)
	return true
}

// ReplaceAll overwrites the collection. Duplicate IDs keep the first record.
func (s *Store) ReplaceAll(images []models.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = make([]models.Image, 0, len(images))
	s.index = make(map[string]int, len(images))
	for _, img := range images {
		if _, exists := s.index[img.ID]; exists {
			continue
		}
		s.index[img.ID] = len(s.images)
		s.images = append(s.images, img)
	}
}

// Snapshot returns a copy of the ordered collection.
func (s *Store) Snapshot() []models.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Image, len(s.images))
	copy(result, s.images)
	return result
}

func (s *Store) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, exists := s.index[id]
	if !exists {
		return -1
	}
	return pos
}

func (s *Store) Get(id string) (models.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, exists := s.index[id]
	if !exists {
		return models.Image{}, false
	}
	return s.images[pos], true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// reindexFrom must be called with the write lock held.
func (s *Store) reindexFrom(pos int) {
	for i := pos; i < len(s.images); i++ {
		s.index[s.images[i].ID] = i
	}
}
