package queue

import (
	"sync"

	"github.com/ghalamif/AegisWatch/internal/ports"
)

// MemQueue is a bounded in-memory queue of fetch jobs that preserves FIFO
// ordering. A fetch pass fills it with every entity job up front, sized to
// the job count, and workers drain it until empty. Len and a non-blocking
// empty check let workers exit without a close handshake, and a rejected
// Enqueue surfaces a sizing bug as an error instead of a blocked send.
type MemQueue struct {
	mu   sync.Mutex
	data []ports.FetchJob
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{
		data: make([]ports.FetchJob, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(job ports.FetchJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, job)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.FetchJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.FetchJob, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.JobQueue = (*MemQueue)(nil)
