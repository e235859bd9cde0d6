package egm

import (
	"context"

	"github.com/qcr/abb-libegm/internal/adapters/journal"
	"github.com/qcr/abb-libegm/internal/domain"
)

// ReplayJournal reads the cycle journal in dir and hands its records to s in append
// order, batchSize at a time. It returns the number of records delivered.
func ReplayJournal(ctx context.Context, dir string, batchSize int, s CycleSink) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	var (
		batch = make([]*domain.CycleRecord, 0, batchSize)
		total int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.WriteBatch(batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := journal.Replay(dir, func(_ journal.EntryID, rec *domain.CycleRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, flush()
}
