package queue

import (
	"sync"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// MemQueue is a bounded in-memory queue of cycle records that preserves FIFO ordering.
type MemQueue struct {
	mu   sync.Mutex
	data []*domain.CycleRecord
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data: make([]*domain.CycleRecord, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(rec *domain.CycleRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, rec)
	return true
}

// EnqueueEvict appends rec, dropping the oldest record when the queue is full.
func (q *MemQueue) EnqueueEvict(rec *domain.CycleRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	evicted := false
	if len(q.data) >= q.cap {
		copy(q.data, q.data[1:])
		q.data[len(q.data)-1] = nil
		q.data = q.data[:len(q.data)-1]
		evicted = true
	}
	q.data = append(q.data, rec)
	return evicted
}

func (q *MemQueue) DequeueBatch(max int) []*domain.CycleRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]*domain.CycleRecord, max)
	copy(out, q.data[:max])
	n := copy(q.data, q.data[max:])
	clear(q.data[n:])
	q.data = q.data[:n]
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.CycleQueue = (*MemQueue)(nil)
