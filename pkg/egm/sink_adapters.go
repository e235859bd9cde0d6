package egm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/qcr/abb-libegm/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("egm: channel sink closed")

// CycleBatchFunc is invoked with ordered batches of cycle records.
type CycleBatchFunc func([]CycleRecord) error

// NewCallbackSink adapts a CycleBatchFunc into a CycleSink.
func NewCallbackSink(name string, fn CycleBatchFunc) CycleSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only
// channel, and a close function that the caller should invoke during shutdown. A full
// channel blocks the drain goroutine, never the control loop.
func NewChannelSink(name string, buffer int) (CycleSink, <-chan []CycleRecord, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []CycleRecord, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   CycleBatchFunc
}

func (s *callbackSink) WriteBatch(records []*domain.CycleRecord) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return nil
	}
	return s.fn(copyBatch(records))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	mu     sync.RWMutex
	ch     chan []CycleRecord
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) WriteBatch(records []*domain.CycleRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(records) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- copyBatch(records):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

// close unblocks pending writes before the channel itself is closed.
func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

func copyBatch(records []*domain.CycleRecord) []CycleRecord {
	out := make([]CycleRecord, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return out
}
