package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/qcr/abb-libegm/internal/ports"
)

// RunDrain writes queued records to sink in batches until ctx is cancelled. A failed
// batch is counted and dropped; the control loop never sees sink errors.
func RunDrain(ctx context.Context, q ports.CycleQueue, sink ports.CycleSink, pol ports.LogPolicy, obs ports.Observability) {
	timer := time.NewTimer(pol.IdleSleep)
	defer timer.Stop()

	for {
		if writeBatch(q, sink, pol, obs) {
			continue
		}

		timer.Reset(pol.IdleSleep)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// writeBatch reports whether a batch was taken from the queue.
func writeBatch(q ports.CycleQueue, sink ports.CycleSink, pol ports.LogPolicy, obs ports.Observability) bool {
	batch := q.DequeueBatch(pol.MaxBatchSize)
	obs.SetGauge(ports.MetricLogQueueLength, float64(q.Len()))
	if len(batch) == 0 {
		return false
	}

	start := time.Now()
	if err := sink.WriteBatch(batch); err != nil {
		written, dropped := 0, len(batch)
		var partial *ports.PartialWriteError
		if errors.As(err, &partial) {
			written, dropped = partial.Written, partial.Dropped
		}
		obs.IncCounter(ports.MetricSinkErrors, 1)
		obs.IncCounter(ports.MetricLogRecordsDropped, float64(dropped))
		if written > 0 {
			obs.IncCounter(ports.MetricLogRecordsWritten, float64(written))
		}
		obs.LogError("sink_write_failed", err,
			ports.Field{Key: "sink", Value: sink.Name()},
			ports.Field{Key: "records", Value: len(batch)},
			ports.Field{Key: "dropped", Value: dropped})
		return true
	}
	obs.ObserveLatency(ports.MetricSinkWriteDuration, time.Since(start).Seconds())
	obs.IncCounter(ports.MetricLogRecordsWritten, float64(len(batch)))
	return true
}

// flush drains the queue until it is empty or ctx expires; leftovers are dropped as
// expired.
func flush(ctx context.Context, q ports.CycleQueue, sink ports.CycleSink, pol ports.LogPolicy, obs ports.Observability) error {
	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			left := q.DequeueBatch(0)
			for range left {
				obs.RecordDrop(ports.DropLogExpired, nil)
			}
			return err
		}
		writeBatch(q, sink, pol, obs)
	}
	return nil
}
