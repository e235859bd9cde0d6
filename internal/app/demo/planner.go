// Package demo generates the built-in reference trajectory: a straight-line move from
// the session's initial feedback to a configured target, with shortest-arc orientation
// interpolation. It is a test stub, not a motion planner.
package demo

import (
	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

type Planner struct{}

func New() *Planner { return &Planner{} }

// Progress maps the elapsed session time onto the interpolation parameter in [0, 1].
func Progress(elapsed, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	switch t := elapsed / duration; {
	case t <= 0 || t != t:
		return 0
	case t >= 1:
		return 1
	default:
		return t
	}
}

// Plan overwrites the seeded command with the reference for the current cycle. It
// leaves out untouched unless demo mode is enabled and the controller is ready
// (motors on, RAPID and EGM running).
func (p *Planner) Plan(initial, current domain.Input, cfg domain.Configuration, out *domain.Output) {
	demo := cfg.Demo
	if !demo.Enabled || !current.StatesOk() {
		return
	}
	duration := demo.Duration.Seconds()
	elapsed := float64(int32(current.Header.Timestamp-initial.Header.Timestamp)) / 1000
	t := Progress(elapsed, duration)
	moving := t > 0 && t < 1

	from := initial.Feedback.Joints
	if target := demo.TargetJoints; len(target) > 0 && len(target) == len(from) && len(out.Joints) == len(from) {
		for i := range out.Joints {
			out.Joints[i] = lerp(from[i], target[i], t)
			if i < len(out.JointVelocities) {
				out.JointVelocities[i] = 0
				if moving {
					out.JointVelocities[i] = (target[i] - from[i]) / duration
				}
			}
		}
	}

	if initial.Feedback.HasPose {
		start, goal := initial.Feedback.Pose, demo.TargetPose
		out.Pose.Position = start.Position.Lerp(goal.Position, t)
		out.Pose.Orientation = start.Orientation.Slerp(goal.Orientation, t)
		out.HasPose = true
		out.LinearVelocity, out.AngularVelocity = domain.Cartesian{}, domain.Cartesian{}
		if moving {
			out.LinearVelocity = goal.Position.Sub(start.Position).Scale(1 / duration)
			out.AngularVelocity = domain.RadToDeg(domain.AngularDisplacement(start.Orientation, goal.Orientation)).Scale(1 / duration)
		}
	}
}

func lerp(a, b, t float64) float64 {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return a + (b-a)*t
}

var _ ports.Planner = (*Planner)(nil)
