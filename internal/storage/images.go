package storage

import (
	"sync"

	"github.com/lehigh-university-libraries/gallery/internal/models"
)

// ImageStore holds image records in upload order.
type ImageStore struct {
	images map[string]models.Image
	order  []string
	mu     sync.RWMutex
}

func NewImageStore() *ImageStore {
	return &ImageStore{
		images: make(map[string]models.Image),
	}
}

func (s *ImageStore) Get(id string) (models.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, exists := s.images[id]
	return img, exists
}

// Set stores img. Replacing an existing id keeps its position.
func (s *ImageStore) Set(img models.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.images[img.ID]; !exists {
		s.order = append(s.order, img.ID)
	}
	s.images[img.ID] = img
}

func (s *ImageStore) GetAll() []models.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Image, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.images[id])
	}
	return result
}

func (s *ImageStore) Delete(id string) (models.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, exists := s.images[id]
	if !exists {
		return models.Image{}, false
	}
	delete(s.images, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return img, true
}

func (s *ImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
