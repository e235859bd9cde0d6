package output

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcr/abb-libegm/internal/adapters/codec"
	"github.com/qcr/abb-libegm/internal/domain"
)

type fakeInputs struct {
	initial, current domain.Input
	first            bool
}

func (f fakeInputs) Initial() domain.Input { return f.initial }
func (f fakeInputs) Current() domain.Input { return f.current }
func (f fakeInputs) IsFirstMessage() bool  { return f.first }

func sixAxisInput(tm uint32, joints ...float64) domain.Input {
	return domain.Input{
		Header: domain.Header{Timestamp: tm},
		Feedback: domain.Feedback{
			Joints:  joints,
			Pose:    domain.Pose{Position: domain.Cartesian{X: 300}, Orientation: domain.IdentityQuaternion},
			HasPose: true,
		},
	}
}

func decodeReply(t *testing.T, c *Container) domain.SensorMessage {
	t.Helper()
	var msg domain.SensorMessage
	require.NotEmpty(t, c.Reply())
	require.NoError(t, codec.New().DecodeSensor(c.Reply(), &msg))
	return msg
}

type shiftPlanner struct{ by float64 }

func (p shiftPlanner) Plan(_, _ domain.Input, _ domain.Configuration, out *domain.Output) {
	for i := range out.Joints {
		out.Joints[i] += p.by
	}
}

func TestFirstReplyEchoesFeedback(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	in := fakeInputs{current: sixAxisInput(40, 1, 2, 3, 4, 5, 6), first: true}
	c.PrepareOutputs(in)
	require.NoError(t, c.ConstructReply(domain.DefaultConfiguration()))

	msg := decodeReply(t, c)
	assert.Equal(t, domain.Header{Sequence: 0, Timestamp: 40, Type: domain.MessageCorrection}, msg.Header)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, msg.PlannedJoints)
	assert.Empty(t, msg.SpeedJoints)
}

func TestSequenceIncrementsAndResets(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()

	var seqs []uint32
	for i := 0; i < 4; i++ {
		c.PrepareOutputs(fakeInputs{current: sixAxisInput(uint32(i*4), 0, 0, 0, 0, 0, 0), first: i == 0 || i == 3})
		require.NoError(t, c.ConstructReply(cfg))
		seqs = append(seqs, decodeReply(t, c).Header.Sequence)
		c.UpdatePrevious()
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, seqs)
}

func TestSequenceProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("sequence advances by one and resets on first message", prop.ForAll(
		func(firsts []bool) bool {
			c := NewContainer(codec.New(), nil)
			cfg := domain.DefaultConfiguration()
			var last uint32
			for i, first := range firsts {
				first = first || i == 0
				c.PrepareOutputs(fakeInputs{current: sixAxisInput(uint32(i), 0, 0, 0, 0, 0, 0), first: first})
				if c.ConstructReply(cfg) != nil {
					return false
				}
				seq := c.SequenceNumber()
				if first && seq != StartSequence {
					return false
				}
				if !first && seq != last+1 {
					return false
				}
				last = seq
				c.UpdatePrevious()
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))
	properties.TestingRun(t)
}

func TestHoldsPreviousCommand(t *testing.T) {
	c := NewContainer(codec.New(), shiftPlanner{by: 1})
	cfg := domain.DefaultConfiguration()

	c.PrepareOutputs(fakeInputs{current: sixAxisInput(0, 0, 0, 0, 0, 0, 0), first: true})
	c.GenerateDemoOutputs(fakeInputs{}, cfg)
	require.NoError(t, c.ConstructReply(cfg))
	c.UpdatePrevious()

	// Feedback moved, but without a new command the previous one is repeated.
	c.PrepareOutputs(fakeInputs{current: sixAxisInput(4, 9, 9, 9, 9, 9, 9)})
	require.NoError(t, c.ConstructReply(cfg))
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, decodeReply(t, c).PlannedJoints)
}

func TestCartesianBodyWithVelocities(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()
	cfg.Mode = domain.ModeCartesian
	cfg.UseVelocityOutputs = true

	in := sixAxisInput(0, 0, 0, 0, 0, 0, 0)
	in.Feedback.Pose.Orientation = domain.Quaternion{W: 2}
	c.PrepareOutputs(fakeInputs{current: in, first: true})
	require.NoError(t, c.ConstructReply(cfg))

	msg := decodeReply(t, c)
	require.True(t, msg.HasPlannedPose)
	assert.Equal(t, domain.Cartesian{X: 300}, msg.PlannedPose.Position)
	assert.Equal(t, domain.IdentityQuaternion, msg.PlannedPose.Orientation, "orientation is normalized")
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, msg.SpeedCartesian)
	assert.Empty(t, msg.PlannedJoints)
}

func TestUnsupportedModeEchoesPrevious(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()
	cfg.Mode = domain.ModeCartesian

	c.PrepareOutputs(fakeInputs{current: sixAxisInput(0, 1, 2, 3, 4, 5, 6), first: true})
	require.NoError(t, c.ConstructReply(cfg))
	c.UpdatePrevious()

	noPose := sixAxisInput(4, 7, 8, 9, 10, 11, 12)
	noPose.Feedback.HasPose = false
	c.PrepareOutputs(fakeInputs{current: noPose})
	err := c.ConstructReply(cfg)
	require.Error(t, err)
	assert.True(t, IsFallback(err))

	msg := decodeReply(t, c)
	assert.Equal(t, uint32(1), msg.Header.Sequence)
	assert.False(t, msg.HasPlannedPose, "the pose channel is gone")
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, msg.PlannedJoints, "previous joint targets are re-sent")
}

func TestCartesianFallbackNeverInventsAPose(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()
	cfg.Mode = domain.ModeCartesian

	jointsOnly := sixAxisInput(0, 10, 20, 30, 40, 50, 60)
	jointsOnly.Feedback.HasPose = false
	c.PrepareOutputs(fakeInputs{current: jointsOnly, first: true})
	require.True(t, IsFallback(c.ConstructReply(cfg)))

	msg := decodeReply(t, c)
	assert.False(t, msg.HasPlannedPose)
	assert.Equal(t, domain.Pose{}, msg.PlannedPose)
	assert.Equal(t, []float64{10, 20, 30, 40, 50, 60}, msg.PlannedJoints)
}

func TestFallbackWithoutAnyChannelIsHeaderOnly(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()

	empty := domain.Input{Header: domain.Header{Timestamp: 8}}
	c.PrepareOutputs(fakeInputs{current: empty, first: true})
	require.True(t, IsFallback(c.ConstructReply(cfg)))

	msg := decodeReply(t, c)
	assert.Equal(t, domain.Header{Sequence: 0, Timestamp: 8, Type: domain.MessageCorrection}, msg.Header)
	assert.Empty(t, msg.PlannedJoints)
	assert.Empty(t, msg.PlannedExternal)
	assert.False(t, msg.HasPlannedPose)
}

func TestPoseAppearingMidSessionIsAdopted(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()
	cfg.Mode = domain.ModeCartesian

	jointsOnly := sixAxisInput(0, 1, 2, 3, 4, 5, 6)
	jointsOnly.Feedback.HasPose = false
	c.PrepareOutputs(fakeInputs{current: jointsOnly, first: true})
	require.Error(t, c.ConstructReply(cfg))
	c.UpdatePrevious()

	c.PrepareOutputs(fakeInputs{current: sixAxisInput(4, 1, 2, 3, 4, 5, 6)})
	require.NoError(t, c.ConstructReply(cfg))
	msg := decodeReply(t, c)
	assert.True(t, msg.HasPlannedPose)
	assert.Equal(t, domain.Cartesian{X: 300}, msg.PlannedPose.Position)
}

func TestUnsupportedModeWithoutFallback(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()
	cfg.Fallback = domain.FallbackNone

	c.PrepareOutputs(fakeInputs{current: sixAxisInput(0, 1, 2, 3, 4, 5, 6), first: true})
	require.NoError(t, c.ConstructReply(cfg))
	c.UpdatePrevious()

	c.PrepareOutputs(fakeInputs{current: sixAxisInput(4)})
	err := c.ConstructReply(cfg)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedMode))
	assert.Empty(t, c.Reply())
	assert.Equal(t, uint32(0), c.SequenceNumber(), "no reply, no sequence consumed")

	c.PrepareOutputs(fakeInputs{current: sixAxisInput(8, 1, 2, 3, 4, 5, 6)})
	require.NoError(t, c.ConstructReply(cfg))
	assert.Equal(t, uint32(1), decodeReply(t, c).Header.Sequence)
}

func TestSevenAxisReplyLayout(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	cfg := domain.DefaultConfiguration()
	cfg.Axes = domain.AxesSeven
	cfg.UseVelocityOutputs = true

	in := sixAxisInput(0, 1, 2, 3, 4, 5, 6, 7)
	in.Feedback.External = []float64{100}
	c.PrepareOutputs(fakeInputs{current: in, first: true})
	require.NoError(t, c.ConstructReply(cfg))

	msg := decodeReply(t, c)
	assert.Equal(t, []float64{1, 2, 4, 5, 6, 7}, msg.PlannedJoints)
	assert.Equal(t, []float64{3, 100}, msg.PlannedExternal)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, msg.SpeedJoints)
	assert.Equal(t, []float64{0, 0}, msg.SpeedExternal)
}

func TestClearReply(t *testing.T) {
	c := NewContainer(codec.New(), nil)
	c.PrepareOutputs(fakeInputs{current: sixAxisInput(0, 0, 0, 0, 0, 0, 0), first: true})
	require.NoError(t, c.ConstructReply(domain.DefaultConfiguration()))
	require.NotEmpty(t, c.Reply())

	c.ClearReply()
	assert.Empty(t, c.Reply())
}
