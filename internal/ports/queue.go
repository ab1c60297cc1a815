package ports

import "github.com/ghalamif/AegisWatch/internal/domain"

// FetchJob is the unit of work of one fetch pass: every metric of one entity.
type FetchJob struct {
	Scope  string
	Entity domain.Entity
}

type JobQueue interface {
	Enqueue(job FetchJob) bool
	DequeueBatch(max int) []FetchJob
	Len() int
}
