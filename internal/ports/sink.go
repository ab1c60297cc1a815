package ports

import "github.com/ghalamif/AegisWatch/internal/domain"

// Sink accepts relay lines. Implementations must be safe for concurrent use
// and must never interleave two lines.
type Sink interface {
	Emit(m domain.Measurement) error
	Name() string
}

// Archive receives every delivered batch after it reached the Sink.
type Archive interface {
	WriteBatch(batch []domain.Delivery) error
	Name() string
}

// Beater emits a single liveness line.
type Beater interface {
	Beat()
}
