package carousel

import "github.com/lehigh-university-libraries/gallery/internal/models"

// Slot is what one display position shows. Empty slots render a placeholder.
type Slot struct {
	Position int
	Index    int
	Image    models.Image
	Empty    bool
}

// Render projects indices onto a snapshot. Any index that is out of bounds
// for the snapshot, including every index over an empty snapshot, yields a
// placeholder slot.
func Render(indices []int, images []models.Image) []Slot {
	slots := make([]Slot, len(indices))
	for i, idx := range indices {
		slots[i] = Slot{Position: i, Index: idx}
		if idx < 0 || idx >= len(images) || images[idx].ID == "" {
			slots[i].Empty = true
			continue
		}
		slots[i].Image = images[idx]
	}
	return slots
}
