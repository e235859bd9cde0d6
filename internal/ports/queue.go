package ports

import "github.com/qcr/abb-libegm/internal/domain"

type CycleQueue interface {
	Enqueue(rec *domain.CycleRecord) bool
	// EnqueueEvict always accepts rec, evicting the oldest entry when full. It reports
	// whether an entry was evicted.
	EnqueueEvict(rec *domain.CycleRecord) bool
	DequeueBatch(max int) []*domain.CycleRecord
	Len() int
}
