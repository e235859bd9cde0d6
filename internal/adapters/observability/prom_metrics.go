package observability

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qcr/abb-libegm/internal/ports"
)

type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

var dropCounters = map[string]string{
	ports.DropParse:          ports.MetricParseErrors,
	ports.DropSchemaMismatch: ports.MetricSchemaMismatch,
	ports.DropDuplicate:      ports.MetricDuplicatesDropped,
	ports.DropLogQueueFull:   ports.MetricLogRecordsDropped,
	ports.DropLogExpired:     ports.MetricLogRecordsDropped,
}

// NewPromObs registers the EGM metrics with reg (the default registerer when nil) and
// logs through logger (slog.Default when nil). Registering twice against the same
// registry reuses the existing collectors.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &PromObs{
		logger:   logger.With("component", "egm"),
		counters: map[string]prometheus.Counter{},
		gauges:   map[string]prometheus.Gauge{},
		histos:   map[string]prometheus.Observer{},
	}

	counters := []struct{ name, help string }{
		{ports.MetricMessagesReceived, "Datagrams received from the controller."},
		{ports.MetricParseErrors, "Datagrams dropped because they could not be decoded."},
		{ports.MetricSchemaMismatch, "Datagrams dropped because they did not match the configured axis layout."},
		{ports.MetricDuplicatesDropped, "Datagrams dropped as duplicates of the current message."},
		{ports.MetricFallbackReplies, "Replies built by the fallback policy."},
		{ports.MetricRepliesSent, "Replies handed to the transport."},
		{ports.MetricSessionsStarted, "Sessions started."},
		{ports.MetricSessionTimeouts, "Sessions ended by the liveness window."},
		{ports.MetricLogRecordsDropped, "Cycle records not logged due to queue backpressure or expiry."},
		{ports.MetricLogRecordsWritten, "Cycle records written to the sink."},
		{ports.MetricSinkErrors, "Failed sink batch writes."},
		{ports.MetricSocketErrors, "UDP read or write failures."},
		{ports.MetricBytesReceived, "Bytes received on the UDP socket."},
	}
	for _, c := range counters {
		p.counters[c.name] = register(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: c.name, Help: c.help}))
	}

	gauges := []struct{ name, help string }{
		{ports.MetricSessionActive, "1 while a session is active."},
		{ports.MetricSampleTime, "Estimated controller sample time."},
		{ports.MetricLogQueueLength, "Cycle records buffered for the sink."},
		{ports.MetricJournalSize, "Size of the on-disk cycle journal."},
	}
	for _, g := range gauges {
		p.gauges[g.name] = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}))
	}

	p.histos[ports.MetricCycleDuration] = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricCycleDuration,
		Help:    "Time from datagram receipt to serialized reply.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	}))
	p.histos[ports.MetricSinkWriteDuration] = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricSinkWriteDuration,
		Help:    "Latency of one sink batch write.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}))

	return p
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), "error", err)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), "error", err, "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDrop(reason string, err error) {
	if name, ok := dropCounters[reason]; ok {
		p.IncCounter(name, 1)
	}
	if err != nil {
		p.logger.Debug("dropped", "reason", reason, "error", err)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, 2*len(fields)+4)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
