package core

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcr/abb-libegm/internal/adapters/codec"
	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObs struct {
	mu       sync.Mutex
	counters map[string]float64
	drops    map[string]int
	errors   []string
}

func newRecordingObs() *recordingObs {
	return &recordingObs{counters: map[string]float64{}, drops: map[string]int{}}
}

func (o *recordingObs) LogInfo(string, ...ports.Field) {}
func (o *recordingObs) LogError(msg string, _ error, _ ...ports.Field) {
	o.mu.Lock()
	o.errors = append(o.errors, msg)
	o.mu.Unlock()
}
func (o *recordingObs) LogCritical(msg string, err error, fields ...ports.Field) {
	o.LogError(msg, err, fields...)
}
func (o *recordingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	o.counters[name] += v
	o.mu.Unlock()
}
func (o *recordingObs) ObserveLatency(string, float64) {}
func (o *recordingObs) SetGauge(string, float64)       {}
func (o *recordingObs) RecordDrop(reason string, _ error) {
	o.mu.Lock()
	o.drops[reason]++
	o.mu.Unlock()
}

func (o *recordingObs) counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name]
}

func (o *recordingObs) dropped(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drops[reason]
}

type captureLogger struct {
	mu      sync.Mutex
	records []*domain.CycleRecord
}

func (l *captureLogger) Log(rec *domain.CycleRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

type robot struct {
	seq, tm uint32
	joints  []float64
	ready   bool
	util    float64
}

func (r robot) bytes() []byte {
	msg := &domain.RobotMessage{
		Header:          domain.Header{Sequence: r.seq, Timestamp: r.tm, Type: domain.MessageData},
		HasHeader:       true,
		Feedback:        domain.WireJoints{Robot: r.joints},
		HasFeedback:     true,
		UtilizationRate: r.util,
		HasUtilization:  true,
	}
	if r.ready {
		msg.MotorState, msg.RAPIDState, msg.EGMState = domain.MotorsOn, domain.RAPIDRunning, domain.EGMRunning
	}
	return codec.New().AppendRobot(nil, msg)
}

func msgAt(seq, tm uint32, joints ...float64) []byte {
	if len(joints) == 0 {
		joints = []float64{0, 0, 0, 0, 0, 0}
	}
	return robot{seq: seq, tm: tm, joints: joints, ready: true}.bytes()
}

func decodeReply(t *testing.T, reply []byte) domain.SensorMessage {
	t.Helper()
	require.NotEmpty(t, reply)
	var msg domain.SensorMessage
	require.NoError(t, codec.New().DecodeSensor(reply, &msg))
	return msg
}

func newTestInterface(t *testing.T, cfg domain.Configuration, opts ...Option) (*Interface, *fakeClock, *recordingObs) {
	t.Helper()
	clock := newFakeClock()
	obs := newRecordingObs()
	opts = append([]Option{WithClock(clock.Now), WithObservability(obs)}, opts...)
	i, err := New(codec.New(), cfg, opts...)
	require.NoError(t, err)
	return i, clock, obs
}

func TestEndToEndScenario(t *testing.T) {
	logger := &captureLogger{}
	cfg := domain.DefaultConfiguration()
	cfg.Logging.Enabled = true
	i, clock, obs := newTestInterface(t, cfg, WithCycleLogger(logger))

	assert.False(t, i.IsConnected())

	var seqs []uint32
	for n, joints := range [][]float64{
		{0, 0, 0, 0, 0, 0},
		{0.4, 0, 0, 0, 0, 0},
		{0.8, 0, 0, 0, 0, 0},
	} {
		reply := i.OnMessage(msgAt(uint32(n), uint32(n*4), joints...))
		msg := decodeReply(t, reply)
		seqs = append(seqs, msg.Header.Sequence)
		assert.Equal(t, uint32(n*4), msg.Header.Timestamp)
		assert.Equal(t, domain.MessageCorrection, msg.Header.Type)
		clock.Advance(4 * time.Millisecond)
	}
	assert.Equal(t, []uint32{0, 1, 2}, seqs)
	assert.True(t, i.IsConnected())
	assert.NotEmpty(t, i.SessionID())

	require.Len(t, logger.records, 3)
	second := logger.records[1]
	assert.InDelta(t, 0.004, second.SampleTime, 1e-12)
	assert.InDelta(t, 100, second.Input.Velocity.Joints[0], 1e-9)
	assert.InDelta(t, 0, second.Input.Velocity.Joints[1], 1e-12)
	assert.Equal(t, uint32(1), second.Output.Header.Sequence)
	assert.Equal(t, i.SessionID(), second.SessionID)
	assert.Equal(t, 4*time.Millisecond, second.Elapsed)

	assert.Equal(t, 1.0, obs.counter(ports.MetricSessionsStarted))
	assert.Equal(t, 3.0, obs.counter(ports.MetricRepliesSent))
}

func TestLoggedRecordsAreImmutable(t *testing.T) {
	logger := &captureLogger{}
	cfg := domain.DefaultConfiguration()
	cfg.Logging.Enabled = true
	i, _, _ := newTestInterface(t, cfg, WithCycleLogger(logger))

	i.OnMessage(msgAt(0, 0, 1, 1, 1, 1, 1, 1))
	i.OnMessage(msgAt(1, 4, 2, 2, 2, 2, 2, 2))
	i.OnMessage(msgAt(2, 8, 3, 3, 3, 3, 3, 3))

	require.Len(t, logger.records, 3)
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, logger.records[0].Input.Feedback.Joints)
	assert.Equal(t, []float64{2, 2, 2, 2, 2, 2}, logger.records[1].Input.Feedback.Joints)
}

func TestLoggingStopsAfterMaxDuration(t *testing.T) {
	logger := &captureLogger{}
	cfg := domain.DefaultConfiguration()
	cfg.Logging = domain.LoggingOptions{Enabled: true, MaxDuration: 10 * time.Millisecond}
	i, clock, _ := newTestInterface(t, cfg, WithCycleLogger(logger))

	for n := 0; n < 6; n++ {
		i.OnMessage(msgAt(uint32(n), uint32(n*4)))
		clock.Advance(4 * time.Millisecond)
	}
	assert.Len(t, logger.records, 3, "cycles at 0, 4 and 8 ms")
}

func TestMalformedInputIsDropped(t *testing.T) {
	i, clock, obs := newTestInterface(t, domain.DefaultConfiguration())

	decodeReply(t, i.OnMessage(msgAt(0, 0, 1, 2, 3, 4, 5, 6)))
	clock.Advance(4 * time.Millisecond)
	before := i.Status()

	for _, bad := range [][]byte{nil, {0xff}, {0x0a, 0x05, 0x08}, []byte("not a protobuf")} {
		assert.Empty(t, i.OnMessage(bad))
	}
	assert.Equal(t, before, i.Status())
	assert.True(t, i.IsConnected())
	assert.Equal(t, 4, obs.dropped(ports.DropParse))

	msg := decodeReply(t, i.OnMessage(msgAt(1, 4, 1, 2, 3, 4, 5, 6)))
	assert.Equal(t, uint32(1), msg.Header.Sequence, "malformed input consumes no sequence number")
}

func TestSchemaMismatchIsDropped(t *testing.T) {
	i, _, obs := newTestInterface(t, domain.DefaultConfiguration())

	assert.Empty(t, i.OnMessage(msgAt(0, 0, 1, 2, 3)))
	assert.False(t, i.IsConnected(), "a mismatching first message does not start a session")
	assert.Equal(t, 1, obs.dropped(ports.DropSchemaMismatch))

	decodeReply(t, i.OnMessage(msgAt(1, 4)))
	assert.True(t, i.IsConnected())
}

func TestSessionTimeoutStartsFreshSession(t *testing.T) {
	i, clock, obs := newTestInterface(t, domain.DefaultConfiguration())

	for n := 0; n < 3; n++ {
		i.OnMessage(msgAt(uint32(n), uint32(n*4)))
		clock.Advance(4 * time.Millisecond)
	}
	first := i.SessionID()

	clock.Advance(DefaultLivenessWindow + time.Millisecond)
	assert.False(t, i.IsConnected())

	msg := decodeReply(t, i.OnMessage(msgAt(3, 500, 9, 9, 9, 9, 9, 9)))
	assert.Equal(t, uint32(0), msg.Header.Sequence)
	assert.Equal(t, []float64{9, 9, 9, 9, 9, 9}, msg.PlannedJoints, "new session seeds from its own feedback")
	assert.NotEqual(t, first, i.SessionID())
	assert.Equal(t, 1.0, obs.counter(ports.MetricSessionTimeouts))
	assert.Equal(t, 2.0, obs.counter(ports.MetricSessionsStarted))
}

func TestReconnectWithoutTimeout(t *testing.T) {
	i, clock, _ := newTestInterface(t, domain.DefaultConfiguration())
	for n := 0; n < 5; n++ {
		i.OnMessage(msgAt(uint32(100+n), uint32(4000+n*4)))
		clock.Advance(4 * time.Millisecond)
	}
	first := i.SessionID()

	// The controller restarted EGM within the liveness window.
	msg := decodeReply(t, i.OnMessage(msgAt(0, 10)))
	assert.Equal(t, uint32(0), msg.Header.Sequence)
	assert.NotEqual(t, first, i.SessionID())
}

func TestReconnectWithoutTimeoutDisabled(t *testing.T) {
	policy := DefaultSessionPolicy()
	policy.RestartOnSequenceReset = false
	policy.RestartOnTimestampRegression = false
	i, clock, _ := newTestInterface(t, domain.DefaultConfiguration(), WithSessionPolicy(policy))

	for n := 0; n < 3; n++ {
		i.OnMessage(msgAt(uint32(100+n), uint32(4000+n*4)))
		clock.Advance(4 * time.Millisecond)
	}
	first := i.SessionID()

	msg := decodeReply(t, i.OnMessage(msgAt(0, 10)))
	assert.Equal(t, uint32(3), msg.Header.Sequence)
	assert.Equal(t, first, i.SessionID())
}

func TestDuplicateMessages(t *testing.T) {
	i, clock, obs := newTestInterface(t, domain.DefaultConfiguration())

	decodeReply(t, i.OnMessage(msgAt(0, 0)))
	clock.Advance(time.Millisecond)
	assert.Empty(t, i.OnMessage(msgAt(0, 0)), "duplicate first message")
	assert.Equal(t, 1, obs.dropped(ports.DropDuplicate))

	msg := decodeReply(t, i.OnMessage(msgAt(1, 4)))
	assert.Equal(t, uint32(1), msg.Header.Sequence)
}

func TestDuplicatesKeptWhenAllowed(t *testing.T) {
	policy := DefaultSessionPolicy()
	policy.DropDuplicates = false
	i, _, _ := newTestInterface(t, domain.DefaultConfiguration(), WithSessionPolicy(policy))

	decodeReply(t, i.OnMessage(msgAt(0, 0)))
	msg := decodeReply(t, i.OnMessage(msgAt(0, 0)))
	assert.Equal(t, uint32(1), msg.Header.Sequence)
}

func TestConfigurationDeferredUntilBoundary(t *testing.T) {
	i, clock, _ := newTestInterface(t, domain.DefaultConfiguration())
	i.OnMessage(msgAt(0, 0))

	next := domain.DefaultConfiguration()
	next.Mode = domain.ModeCartesian
	i.SetConfiguration(next)

	assert.Equal(t, domain.ModeJoint, i.Configuration().Mode)
	assert.True(t, i.HasPendingConfiguration())

	clock.Advance(4 * time.Millisecond)
	msg := decodeReply(t, i.OnMessage(msgAt(1, 4)))
	assert.NotEmpty(t, msg.PlannedJoints, "still joint mode mid-session")
	assert.Equal(t, domain.ModeJoint, i.Configuration().Mode)

	clock.Advance(time.Second)
	i.OnMessage(msgAt(2, 1004))
	assert.Equal(t, domain.ModeCartesian, i.Configuration().Mode)
	assert.False(t, i.HasPendingConfiguration())
}

func TestInvalidConfigurationStaysStaged(t *testing.T) {
	i, clock, obs := newTestInterface(t, domain.DefaultConfiguration())
	i.OnMessage(msgAt(0, 0))

	bad := domain.DefaultConfiguration()
	bad.Axes = 5
	i.SetConfiguration(bad)

	clock.Advance(time.Second)
	decodeReply(t, i.OnMessage(msgAt(1, 1000)))
	assert.Equal(t, domain.AxesSix, i.Configuration().Axes)
	assert.True(t, i.HasPendingConfiguration())
	assert.Contains(t, obs.errors, "configuration_rejected")
}

func TestCartesianModeFallback(t *testing.T) {
	cfg := domain.DefaultConfiguration()
	cfg.Mode = domain.ModeCartesian
	i, _, obs := newTestInterface(t, cfg)

	// Joint-only feedback: no pose to command, so the joint targets are held.
	for seq := uint32(0); seq < 2; seq++ {
		msg := decodeReply(t, i.OnMessage(msgAt(seq, seq*4, 10, 20, 30, 40, 50, 60)))
		assert.Equal(t, seq, msg.Header.Sequence)
		assert.False(t, msg.HasPlannedPose, "no pose the controller never reported")
		assert.Equal(t, []float64{10, 20, 30, 40, 50, 60}, msg.PlannedJoints)
	}
	assert.Equal(t, 2.0, obs.counter(ports.MetricFallbackReplies))

	cfg.Fallback = domain.FallbackNone
	j, _, _ := newTestInterface(t, cfg)
	assert.Empty(t, j.OnMessage(msgAt(0, 0)))
	assert.True(t, j.IsConnected(), "no reply does not end the session")
}

func TestDemoMovesTowardsTarget(t *testing.T) {
	cfg := domain.DefaultConfiguration()
	cfg.Demo = domain.DemoConfig{
		Enabled:      true,
		TargetJoints: []float64{10, 10, 10, 10, 10, 10},
		TargetPose:   domain.Pose{Orientation: domain.IdentityQuaternion},
		Duration:     100 * time.Millisecond,
	}
	i, clock, _ := newTestInterface(t, cfg)

	var last []float64
	for n := 0; n <= 30; n++ {
		msg := decodeReply(t, i.OnMessage(msgAt(uint32(n), uint32(n*4))))
		if n == 0 {
			assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, msg.PlannedJoints)
		}
		last = msg.PlannedJoints
		clock.Advance(4 * time.Millisecond)
	}
	assert.Equal(t, cfg.Demo.TargetJoints, last)
}

func TestDemoHoldsWhenNotReady(t *testing.T) {
	cfg := domain.DefaultConfiguration()
	cfg.Demo = domain.DemoConfig{Enabled: true, TargetJoints: []float64{10, 10, 10, 10, 10, 10}, Duration: 8 * time.Millisecond}
	i, clock, _ := newTestInterface(t, cfg)

	for n := 0; n < 5; n++ {
		r := robot{seq: uint32(n), tm: uint32(n * 4), joints: []float64{0, 0, 0, 0, 0, 0}}
		msg := decodeReply(t, i.OnMessage(r.bytes()))
		assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, msg.PlannedJoints)
		clock.Advance(4 * time.Millisecond)
	}
}

type constantPlanner struct{ joints []float64 }

func (p constantPlanner) Plan(_, _ domain.Input, _ domain.Configuration, out *domain.Output) {
	out.Joints = append(out.Joints[:0], p.joints...)
}

func TestInjectedPlanner(t *testing.T) {
	i, _, _ := newTestInterface(t, domain.DefaultConfiguration(), WithPlanner(constantPlanner{joints: []float64{1, 2, 3, 4, 5, 6}}))
	msg := decodeReply(t, i.OnMessage(msgAt(0, 0)))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, msg.PlannedJoints)
}

func TestInitialized(t *testing.T) {
	i, _, _ := newTestInterface(t, domain.DefaultConfiguration())
	assert.False(t, i.IsInitialized())
	i.SetInitialized(true)
	assert.True(t, i.IsInitialized())
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	cfg := domain.DefaultConfiguration()
	cfg.Mode = "torque"
	_, err := New(codec.New(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestConcurrentQueriesNeverObserveTornStatus(t *testing.T) {
	i, clock, _ := newTestInterface(t, domain.DefaultConfiguration())

	const cycles = 2000
	var (
		done atomic.Bool
		torn atomic.Int64
		wg   sync.WaitGroup
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				s := i.Status()
				if s.Status.UtilizationRate != float64(s.Header.Sequence) {
					torn.Add(1)
				}
				_ = i.IsConnected()
				_ = i.Configuration()
				i.SetConfiguration(domain.DefaultConfiguration())
			}
		}()
	}

	for n := 0; n < cycles; n++ {
		r := robot{seq: uint32(n), tm: uint32(n * 4), joints: []float64{0, 0, 0, 0, 0, 0}, ready: true, util: float64(n)}
		i.OnMessage(r.bytes())
		clock.Advance(4 * time.Millisecond)
	}
	done.Store(true)
	wg.Wait()

	assert.Zero(t, torn.Load())
	assert.Equal(t, uint32(cycles-1), i.Status().Header.Sequence)
}
