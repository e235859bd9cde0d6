package ports

import (
	"fmt"

	"github.com/qcr/abb-libegm/internal/domain"
)

// CycleLogger receives one immutable record per processed cycle. Implementations
// must not block.
type CycleLogger interface {
	Log(rec *domain.CycleRecord)
}

// CycleSink persists batches of cycle records off the hot path.
type CycleSink interface {
	WriteBatch(records []*domain.CycleRecord) error
	Name() string
}

// PartialWriteError is returned by a sink that persisted part of a batch and skipped
// the rest.
type PartialWriteError struct {
	Written int
	Dropped int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("wrote %d records, dropped %d: %v", e.Written, e.Dropped, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
