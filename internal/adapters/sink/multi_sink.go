package sink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// MultiSink fans a batch out to several sinks. Every sink sees every batch; the
// errors are joined.
type MultiSink struct {
	sinks []ports.CycleSink
}

func NewMultiSink(sinks ...ports.CycleSink) *MultiSink {
	out := make([]ports.CycleSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m *MultiSink) WriteBatch(records []*domain.CycleRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteBatch(records); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Len() int { return len(m.sinks) }

var _ ports.CycleSink = (*MultiSink)(nil)
