package egm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qcr/abb-libegm/internal/adapters/codec"
	"github.com/qcr/abb-libegm/internal/adapters/journal"
	"github.com/qcr/abb-libegm/internal/adapters/observability"
	"github.com/qcr/abb-libegm/internal/adapters/queue"
	"github.com/qcr/abb-libegm/internal/adapters/sink"
	"github.com/qcr/abb-libegm/internal/adapters/udp"
	"github.com/qcr/abb-libegm/internal/app/core"
	"github.com/qcr/abb-libegm/internal/app/pipeline"
	"github.com/qcr/abb-libegm/internal/ports"
)

// Option customizes the dependencies used by an Interface.
type Option func(*overrides)

type overrides struct {
	codec    Codec
	planner  Planner
	sinks    []CycleSink
	queue    CycleQueue
	obs      Observability
	logger   *slog.Logger
	reg      prometheus.Registerer
	policy   *SessionPolicy
	noServer bool
}

// WithCodec replaces the protobuf wire codec.
func WithCodec(c Codec) Option {
	return func(o *overrides) { o.codec = c }
}

// WithPlanner replaces the demo trajectory with a caller-supplied reference generator.
func WithPlanner(p Planner) Option {
	return func(o *overrides) { o.planner = p }
}

// WithSink adds a cycle sink next to the ones named in the logging config. Cycle
// records only flow while logging is enabled.
func WithSink(s CycleSink) Option {
	return func(o *overrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithQueue swaps the in-memory cycle queue.
func WithQueue(q CycleQueue) Option {
	return func(o *overrides) { o.queue = q }
}

// WithObservability plugs in a custom observability backend; WithLogger and
// WithRegisterer are ignored when it is set.
func WithObservability(obs Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithLogger sets the slog logger used by the default observability backend.
func WithLogger(l *slog.Logger) Option {
	return func(o *overrides) { o.logger = l }
}

// WithRegisterer registers the metrics with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *overrides) { o.reg = reg }
}

// WithSessionPolicy overrides the session section of the config.
func WithSessionPolicy(p SessionPolicy) Option {
	return func(o *overrides) { o.policy = &p }
}

// WithoutServer skips the UDP socket; datagrams are fed through Handler instead.
func WithoutServer() Option {
	return func(o *overrides) { o.noServer = true }
}

// Interface is a complete EGM endpoint: UDP transport, control-cycle orchestrator,
// decoupled cycle logging and the metrics server.
type Interface struct {
	cfg      *Config
	obs      Observability
	gatherer prometheus.Gatherer

	core    *core.Interface
	server  *udp.Server
	queue   CycleQueue
	logger  *pipeline.AsyncLogger
	journal *journal.FileJournal
	ts      *sink.TimescaleSink
	closers []io.Closer

	metricsSrv  *http.Server
	gaugeStopCh chan struct{}
}

// NewInterface wires the default adapters (protobuf codec, UDP server, Prometheus
// observability, in-memory queue and the sinks named in cfg.Logging). Options
// override any of them.
func NewInterface(cfg *Config, opts ...Option) (*Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	e := &Interface{cfg: cfg, obs: o.obs}
	if e.obs == nil {
		reg := o.reg
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if g, ok := reg.(prometheus.Gatherer); ok {
			e.gatherer = g
		}
		e.obs = observability.NewPromObs(reg, o.logger)
	}

	c := o.codec
	if c == nil {
		c = codec.New()
	}

	policy := cfg.SessionPolicy()
	if o.policy != nil {
		policy = *o.policy
	}
	coreOpts := []core.Option{
		core.WithObservability(e.obs),
		core.WithSessionPolicy(policy),
		core.WithPlanner(o.planner),
	}

	snk, err := e.openSinks(o.sinks)
	if err != nil {
		e.closeSinks()
		return nil, err
	}
	if snk != nil {
		e.queue = o.queue
		if e.queue == nil {
			e.queue = queue.NewMemQueue(cfg.Logging.MaxQueueLen)
		}
		e.logger, err = pipeline.NewAsyncLogger(e.queue, snk, cfg.LogPolicy(), e.obs)
		if err != nil {
			e.closeSinks()
			return nil, err
		}
		coreOpts = append(coreOpts, core.WithCycleLogger(e.logger))
	}

	e.core, err = core.New(c, cfg.Interface(), coreOpts...)
	if err != nil {
		e.closeSinks()
		return nil, err
	}

	if !o.noServer {
		e.server = udp.NewServer(cfg.Server, e.core,
			udp.WithBoundHook(e.core.SetInitialized),
			udp.WithObservability(e.obs))
	}
	return e, nil
}

func (e *Interface) openSinks(extra []CycleSink) (CycleSink, error) {
	var sinks []ports.CycleSink
	lc := e.cfg.Logging

	if lc.CSVPath != "" {
		s, err := sink.OpenCSV(lc.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("csv sink: %w", err)
		}
		e.closers = append(e.closers, s)
		sinks = append(sinks, s)
	}
	if lc.JournalDir != "" {
		j, err := journal.Open(lc.JournalDir)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		e.journal = j
		e.closers = append(e.closers, j)
		sinks = append(sinks, j)
	}
	if lc.Timescale.ConnString != "" {
		ts, err := sink.OpenTimescale(lc.Timescale.ConnString, lc.Timescale.Table)
		if err != nil {
			return nil, fmt.Errorf("timescale sink: %w", err)
		}
		e.ts = ts
		e.closers = append(e.closers, ts)
		sinks = append(sinks, ts)
	}
	sinks = append(sinks, extra...)

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sink.NewMultiSink(sinks...), nil
	}
}

// Start binds the UDP socket and launches cycle logging and the metrics server. It
// returns immediately; use Run to block on a context.
func (e *Interface) Start(ctx context.Context) error {
	if e.ts != nil && e.cfg.Logging.Timescale.EnsureSchema {
		if err := e.ts.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	if e.logger != nil {
		e.logger.Start(ctx)
	}
	if e.server != nil {
		if err := e.server.Start(ctx); err != nil {
			return err
		}
	} else {
		e.core.SetInitialized(true)
	}
	if e.cfg.Metrics.Addr != "" {
		e.startMetrics()
	}
	e.gaugeStopCh = make(chan struct{})
	go e.recordGauges(e.gaugeStopCh, time.Second)
	return nil
}

// Run starts the interface and blocks until ctx is cancelled, then shuts down.
func (e *Interface) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown stops the transport, flushes queued cycle records and closes the sinks.
func (e *Interface) Shutdown(ctx context.Context) error {
	var errs []error

	if e.gaugeStopCh != nil {
		close(e.gaugeStopCh)
		e.gaugeStopCh = nil
	}
	if e.server != nil {
		timeout := time.Second
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		if err := e.server.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	} else {
		e.core.SetInitialized(false)
	}
	if e.metricsSrv != nil {
		if err := e.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if e.logger != nil {
		if err := e.logger.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, e.closeSinks())
	return errors.Join(errs...)
}

func (e *Interface) closeSinks() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *Interface) startMetrics() {
	mux := http.NewServeMux()
	if e.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !e.core.IsInitialized() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not bound"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	e.metricsSrv = &http.Server{
		Addr:              e.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := e.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.obs.LogError("metrics_server_exited", err)
		}
	}()
}

func (e *Interface) recordGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.sampleGauges()
		}
	}
}

func (e *Interface) sampleGauges() {
	if e.core.IsConnected() {
		e.obs.SetGauge(ports.MetricSessionActive, 1)
	} else {
		e.obs.SetGauge(ports.MetricSessionActive, 0)
	}
	if e.queue != nil {
		e.obs.SetGauge(ports.MetricLogQueueLength, float64(e.queue.Len()))
	}
	if e.journal != nil {
		e.obs.SetGauge(ports.MetricJournalSize, float64(e.journal.Stats().SizeBytes))
	}
}

// Handler is the per-datagram entry point, for callers that bring their own transport.
// It must not be called concurrently with itself or with a running UDP server.
func (e *Interface) Handler() Handler { return e.core }

// Addr is the bound UDP address, or nil before Start or without a server.
func (e *Interface) Addr() net.Addr {
	if e.server == nil {
		return nil
	}
	return e.server.Addr()
}

// IsConnected reports whether the controller is streaming.
func (e *Interface) IsConnected() bool { return e.core.IsConnected() }

// IsInitialized reports whether the transport is bound.
func (e *Interface) IsInitialized() bool { return e.core.IsInitialized() }

// Status returns the latest header/status pair.
func (e *Interface) Status() SessionData { return e.core.Status() }

// SessionID identifies the current (or last) session.
func (e *Interface) SessionID() string { return e.core.SessionID() }

// Configuration returns the active configuration.
func (e *Interface) Configuration() Configuration { return e.core.Configuration() }

// SetConfiguration stages cfg; it takes effect at the next session boundary.
func (e *Interface) SetConfiguration(cfg Configuration) { e.core.SetConfiguration(cfg) }

// HasPendingConfiguration reports whether a staged configuration is waiting.
func (e *Interface) HasPendingConfiguration() bool { return e.core.HasPendingConfiguration() }
