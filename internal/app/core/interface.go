// Package core is the per-datagram orchestrator: it runs the input and output
// pipelines, tracks the session and exposes the thread-safe query API.
package core

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/qcr/abb-libegm/internal/app/demo"
	"github.com/qcr/abb-libegm/internal/app/input"
	"github.com/qcr/abb-libegm/internal/app/output"
	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// Interface is one EGM endpoint. OnMessage must be called serially (the transport's
// read loop); every other method is safe for concurrent use.
type Interface struct {
	obs     ports.Observability
	logger  ports.CycleLogger
	now     func() time.Time
	policy  SessionPolicy
	limiter *rate.Limiter

	config  *ConfigurationStore
	session SessionTracker

	active      atomic.Bool
	lastValid   atomic.Int64
	initialized atomic.Bool

	// Owned by the OnMessage goroutine.
	inputs       *input.Container
	outputs      *output.Container
	cfg          domain.Configuration
	sessionID    string
	sessionStart time.Time
	suppressed   int
}

type Option func(*Interface)

func WithObservability(obs ports.Observability) Option {
	return func(i *Interface) {
		if obs != nil {
			i.obs = obs
		}
	}
}

// WithCycleLogger installs the optional per-cycle logger.
func WithCycleLogger(l ports.CycleLogger) Option {
	return func(i *Interface) { i.logger = l }
}

// WithPlanner replaces the demo reference generator.
func WithPlanner(p ports.Planner) Option {
	return func(i *Interface) {
		if p != nil {
			i.outputs.SetPlanner(p)
		}
	}
}

func WithSessionPolicy(p SessionPolicy) Option {
	return func(i *Interface) {
		if p.LivenessWindow <= 0 {
			p.LivenessWindow = DefaultLivenessWindow
		}
		i.policy = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Interface) {
		if now != nil {
			i.now = now
		}
	}
}

// WithDropLogRate bounds how often dropped messages are logged.
func WithDropLogRate(every time.Duration, burst int) Option {
	return func(i *Interface) { i.limiter = rate.NewLimiter(rate.Every(every), burst) }
}

// New creates an interface with cfg as its active configuration.
func New(codec ports.Codec, cfg domain.Configuration, opts ...Option) (*Interface, error) {
	cfg = cfg.Clone()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	i := &Interface{
		obs:     ports.NopObservability{},
		now:     time.Now,
		policy:  DefaultSessionPolicy(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		config:  NewConfigurationStore(cfg),
		inputs:  input.NewContainer(codec, cfg.NominalCycleTime),
		outputs: output.NewContainer(codec, demo.New()),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// OnMessage processes one datagram and returns the reply to send, if any. The reply is
// only valid until the next call.
func (i *Interface) OnMessage(data []byte) []byte {
	start := i.now()
	i.outputs.ClearReply()
	i.obs.IncCounter(ports.MetricMessagesReceived, 1)

	i.checkLiveness(start)

	if err := i.inputs.ParseFromArray(data); err != nil {
		i.drop(ports.DropParse, err)
		return nil
	}

	boundary := !i.active.Load()
	if !boundary {
		switch i.policy.decide(i.inputs.Current().Header, i.inputs.ParsedHeader()) {
		case dropDuplicate:
			i.drop(ports.DropDuplicate, fmt.Errorf("seq=%d tm=%d", i.inputs.ParsedHeader().Sequence, i.inputs.ParsedHeader().Timestamp))
			return nil
		case restartSession:
			i.obs.LogInfo("session_restart_detected",
				ports.Field{Key: "session_id", Value: i.sessionID},
				ports.Field{Key: "last_seq", Value: i.inputs.Current().Header.Sequence},
				ports.Field{Key: "seq", Value: i.inputs.ParsedHeader().Sequence},
			)
			i.endSession()
			boundary = true
		}
	}
	if boundary {
		i.applyConfiguration()
	}

	if err := i.inputs.ExtractParsedInformation(i.cfg.Axes); err != nil {
		i.drop(ports.DropSchemaMismatch, err)
		return nil
	}
	if boundary {
		i.beginSession(start)
	}

	sampleTime := i.inputs.EstimateSampleTime()
	i.inputs.EstimateAllVelocities()

	current := i.inputs.Current()
	i.session.Update(current.Header, current.Status)
	i.lastValid.Store(start.UnixNano())

	i.outputs.PrepareOutputs(i.inputs)
	i.outputs.GenerateDemoOutputs(i.inputs, i.cfg)
	if err := i.outputs.ConstructReply(i.cfg); err != nil {
		if output.IsFallback(err) {
			i.obs.IncCounter(ports.MetricFallbackReplies, 1)
			i.logThrottled("fallback_reply", err)
		} else {
			i.obs.LogError("reply_construction_failed", err)
		}
	}

	reply := i.outputs.Reply()
	replied := len(reply) > 0
	if replied {
		i.obs.IncCounter(ports.MetricRepliesSent, 1)
	}
	i.logCycle(start, sampleTime, replied)

	i.inputs.UpdatePrevious()
	if replied {
		i.outputs.UpdatePrevious()
	}

	i.obs.SetGauge(ports.MetricSampleTime, sampleTime)
	i.obs.ObserveLatency(ports.MetricCycleDuration, i.now().Sub(start).Seconds())
	return reply
}

func (i *Interface) checkLiveness(now time.Time) {
	if !i.active.Load() {
		return
	}
	idle := now.Sub(time.Unix(0, i.lastValid.Load()))
	if idle <= i.policy.LivenessWindow {
		return
	}
	err := domain.NewError("liveness", domain.ErrSessionTimeout, fmt.Errorf("no valid message for %s", idle))
	i.obs.IncCounter(ports.MetricSessionTimeouts, 1)
	i.obs.LogError("session_timeout", err, ports.Field{Key: "session_id", Value: i.sessionID})
	i.endSession()
}

func (i *Interface) endSession() {
	i.active.Store(false)
	i.inputs.ResetSession()
	i.obs.SetGauge(ports.MetricSessionActive, 0)
}

func (i *Interface) applyConfiguration() {
	applied, err := i.config.ApplyPending()
	if err != nil {
		i.obs.LogError("configuration_rejected", err)
	}
	if !applied {
		return
	}
	i.cfg = i.config.Active()
	i.inputs.SetNominalCycleTime(i.cfg.NominalCycleTime)
	i.obs.LogInfo("configuration_applied",
		ports.Field{Key: "axes", Value: int(i.cfg.Axes)},
		ports.Field{Key: "mode", Value: string(i.cfg.Mode)},
		ports.Field{Key: "demo", Value: i.cfg.Demo.Enabled},
	)
}

func (i *Interface) beginSession(now time.Time) {
	i.sessionID = uuid.NewString()
	i.sessionStart = now
	i.session.Begin(i.sessionID)
	i.active.Store(true)

	h := i.inputs.Current().Header
	i.obs.IncCounter(ports.MetricSessionsStarted, 1)
	i.obs.SetGauge(ports.MetricSessionActive, 1)
	i.obs.LogInfo("session_started",
		ports.Field{Key: "session_id", Value: i.sessionID},
		ports.Field{Key: "seq", Value: h.Sequence},
		ports.Field{Key: "tm", Value: h.Timestamp},
	)
}

func (i *Interface) logCycle(now time.Time, sampleTime float64, replied bool) {
	if i.logger == nil || !i.cfg.Logging.Enabled {
		return
	}
	elapsed := now.Sub(i.sessionStart)
	if limit := i.cfg.Logging.MaxDuration; limit > 0 && elapsed > limit {
		return
	}
	i.logger.Log(&domain.CycleRecord{
		SessionID:  i.sessionID,
		Received:   now,
		Elapsed:    elapsed,
		SampleTime: sampleTime,
		Input:      i.inputs.Current().Clone(),
		Output:     i.outputs.Current().Clone(),
		Replied:    replied,
	})
}

func (i *Interface) drop(reason string, err error) {
	i.obs.RecordDrop(reason, err)
	i.logThrottled("message_dropped", err, ports.Field{Key: "reason", Value: reason})
}

// logThrottled keeps a flood of bad datagrams from turning into a flood of log lines.
func (i *Interface) logThrottled(msg string, err error, fields ...ports.Field) {
	if !i.limiter.Allow() {
		i.suppressed++
		return
	}
	if i.suppressed > 0 {
		fields = append(fields, ports.Field{Key: "suppressed", Value: i.suppressed})
		i.suppressed = 0
	}
	i.obs.LogError(msg, err, fields...)
}

// IsConnected reports whether a session is active and its liveness window has not
// elapsed.
func (i *Interface) IsConnected() bool {
	if !i.active.Load() {
		return false
	}
	return i.now().Sub(time.Unix(0, i.lastValid.Load())) <= i.policy.LivenessWindow
}

// SetInitialized is called by the transport once its socket is bound.
func (i *Interface) SetInitialized(ok bool) { i.initialized.Store(ok) }

func (i *Interface) IsInitialized() bool { return i.initialized.Load() }

// Status returns the latest header/status pair.
func (i *Interface) Status() domain.SessionData { return i.session.Snapshot() }

// SessionID identifies the active (or last) session; empty before the first one.
func (i *Interface) SessionID() string { return i.session.SessionID() }

// Configuration returns the active configuration. Staged updates are not visible
// until they have been applied.
func (i *Interface) Configuration() domain.Configuration { return i.config.Active() }

// SetConfiguration stages cfg for the next session boundary. It never blocks the
// control cycle; an invalid configuration is reported when the boundary is reached.
func (i *Interface) SetConfiguration(cfg domain.Configuration) { i.config.Set(cfg) }

// HasPendingConfiguration reports whether a staged configuration awaits a boundary.
func (i *Interface) HasPendingConfiguration() bool { return i.config.HasPending() }

var _ ports.Handler = (*Interface)(nil)
