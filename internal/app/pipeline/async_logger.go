// Package pipeline moves cycle records off the control loop: the logger offers them
// to a bounded queue and a drain goroutine writes batches to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

const (
	PolicyDropNewest = "drop_newest"
	PolicyDropOldest = "drop_oldest"
)

// AsyncLogger implements ports.CycleLogger. Log never blocks.
type AsyncLogger struct {
	q    ports.CycleQueue
	sink ports.CycleSink
	pol  ports.LogPolicy
	obs  ports.Observability

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAsyncLogger(q ports.CycleQueue, sink ports.CycleSink, pol ports.LogPolicy, obs ports.Observability) (*AsyncLogger, error) {
	if q == nil || sink == nil {
		return nil, errors.New("pipeline: queue and sink are required")
	}
	switch pol.OnQueueFull {
	case "":
		pol.OnQueueFull = PolicyDropNewest
	case PolicyDropNewest, PolicyDropOldest:
	default:
		return nil, fmt.Errorf("pipeline: unsupported queue policy %q", pol.OnQueueFull)
	}
	if pol.IdleSleep <= 0 {
		pol.IdleSleep = 5 * time.Millisecond
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &AsyncLogger{q: q, sink: sink, pol: pol, obs: obs}, nil
}

func (l *AsyncLogger) Log(rec *domain.CycleRecord) {
	offerWithPolicy(l.q, rec, l.pol, l.obs)
}

// Start launches the drain goroutine. It stops when ctx is cancelled or Close is called.
func (l *AsyncLogger) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		RunDrain(ctx, l.q, l.sink, l.pol, l.obs)
	}()
}

// Close stops the drain loop and flushes what is left in the queue. Records still
// queued when ctx expires are dropped.
func (l *AsyncLogger) Close(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return flush(ctx, l.q, l.sink, l.pol, l.obs)
}

func offerWithPolicy(q ports.CycleQueue, rec *domain.CycleRecord, pol ports.LogPolicy, obs ports.Observability) bool {
	if pol.OnQueueFull == PolicyDropOldest {
		if q.EnqueueEvict(rec) {
			obs.RecordDrop(ports.DropLogQueueFull, nil)
		}
		return true
	}
	if !q.Enqueue(rec) {
		obs.RecordDrop(ports.DropLogQueueFull, fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
		return false
	}
	return true
}
