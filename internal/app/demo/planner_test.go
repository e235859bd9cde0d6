package demo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcr/abb-libegm/internal/domain"
)

func readyInput(tm uint32) domain.Input {
	return domain.Input{
		Header: domain.Header{Timestamp: tm},
		Status: domain.Status{
			MotorState: domain.MotorsOn,
			RAPIDState: domain.RAPIDRunning,
			EGMState:   domain.EGMRunning,
		},
	}
}

func demoSetup() (domain.Input, domain.Configuration, domain.Quaternion) {
	initial := readyInput(1000)
	initial.Feedback = domain.Feedback{
		Joints:  []float64{0, 0, 0, 0, 0, 0},
		Pose:    domain.Pose{Position: domain.Cartesian{X: 100}, Orientation: domain.Quaternion{W: 0.6, X: 0.8}},
		HasPose: true,
	}
	target := domain.Quaternion{W: math.Sqrt(0.5), Z: math.Sqrt(0.5)}

	cfg := domain.DefaultConfiguration()
	cfg.Demo = domain.DemoConfig{
		Enabled:      true,
		TargetJoints: []float64{10, 20, 30, 40, 50, 60},
		TargetPose:   domain.Pose{Position: domain.Cartesian{X: 200, Z: 50}, Orientation: target},
		Duration:     2 * time.Second,
	}
	return initial, cfg, target
}

func seeded(in domain.Input) *domain.Output {
	return &domain.Output{
		Joints:          append([]float64(nil), in.Feedback.Joints...),
		JointVelocities: make([]float64, len(in.Feedback.Joints)),
		Pose:            in.Feedback.Pose,
		HasPose:         true,
	}
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(-1, 2))
	assert.Equal(t, 0.0, Progress(0, 2))
	assert.Equal(t, 0.25, Progress(0.5, 2))
	assert.Equal(t, 1.0, Progress(2, 2))
	assert.Equal(t, 1.0, Progress(5, 2))
	assert.Equal(t, 1.0, Progress(1, 0))
	assert.Equal(t, 0.0, Progress(math.NaN(), 2))
}

func TestPlanStartIsExact(t *testing.T) {
	initial, cfg, _ := demoSetup()
	out := seeded(initial)
	New().Plan(initial, initial, cfg, out)

	assert.Equal(t, initial.Feedback.Joints, out.Joints)
	assert.Equal(t, initial.Feedback.Pose.Orientation, out.Pose.Orientation)
	assert.Equal(t, initial.Feedback.Pose.Position, out.Pose.Position)
	assert.Equal(t, domain.Cartesian{}, out.LinearVelocity)
}

func TestPlanEndIsExactAndHolds(t *testing.T) {
	initial, cfg, target := demoSetup()
	for _, tm := range []uint32{3000, 3004, 60000} {
		out := seeded(initial)
		New().Plan(initial, readyInput(tm), cfg, out)

		assert.Equal(t, cfg.Demo.TargetJoints, out.Joints)
		assert.Equal(t, target, out.Pose.Orientation)
		assert.Equal(t, cfg.Demo.TargetPose.Position, out.Pose.Position)
		assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, out.JointVelocities)
	}
}

func TestPlanMidway(t *testing.T) {
	initial, cfg, _ := demoSetup()
	out := seeded(initial)
	New().Plan(initial, readyInput(2000), cfg, out)

	require.Len(t, out.Joints, 6)
	assert.InDelta(t, 5, out.Joints[0], 1e-12)
	assert.InDelta(t, 30, out.Joints[5], 1e-12)
	assert.InDelta(t, 150, out.Pose.Position.X, 1e-12)
	assert.InDelta(t, 1.0, out.Pose.Orientation.Norm(), 1e-12)
	assert.InDelta(t, 5, out.JointVelocities[0], 1e-12, "feed-forward deg/s")
	assert.InDelta(t, 50, out.LinearVelocity.X, 1e-12)
	assert.InDelta(t, 25, out.LinearVelocity.Z, 1e-12)
}

func TestPlanHoldsWhenNotReady(t *testing.T) {
	initial, cfg, _ := demoSetup()
	out := seeded(initial)
	stopped := readyInput(2000)
	stopped.Status.RAPIDState = domain.RAPIDStopped

	New().Plan(initial, stopped, cfg, out)
	assert.Equal(t, seeded(initial), out)
}

func TestPlanDisabled(t *testing.T) {
	initial, cfg, _ := demoSetup()
	cfg.Demo.Enabled = false
	out := seeded(initial)

	New().Plan(initial, readyInput(2000), cfg, out)
	assert.Equal(t, seeded(initial), out)
}

func TestPlanSkipsJointsOnLengthMismatch(t *testing.T) {
	initial, cfg, _ := demoSetup()
	cfg.Demo.TargetJoints = []float64{1, 2, 3}
	out := seeded(initial)

	New().Plan(initial, readyInput(2000), cfg, out)
	assert.Equal(t, initial.Feedback.Joints, out.Joints)
	assert.InDelta(t, 150, out.Pose.Position.X, 1e-12, "the pose is still planned")
}
