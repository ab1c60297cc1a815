package ports

import "github.com/ghalamif/AegisWatch/internal/domain"

// WatermarkStore persists the watermark map between runs.
type WatermarkStore interface {
	// Load never fails: a missing or unreadable snapshot is an empty map.
	Load() domain.Watermarks
	// Save replaces the snapshot atomically.
	Save(marks domain.Watermarks) error
}
