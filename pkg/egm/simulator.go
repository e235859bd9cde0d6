package egm

import (
	"fmt"
	"net"
	"time"

	"github.com/qcr/abb-libegm/internal/adapters/codec"
	"github.com/qcr/abb-libegm/internal/domain"
)

// Simulator plays the controller side of EGM: it streams EgmRobot messages to an
// endpoint and decodes the EgmSensor replies. It is meant for tests and demos.
type Simulator struct {
	conn  *net.UDPConn
	codec codec.Codec
	msg   domain.RobotMessage
	buf   []byte
	rbuf  []byte

	// Cycle is added to the message timestamp on every Step.
	Cycle time.Duration
	steps int
}

// DialSimulator connects to the endpoint at addr. The simulated robot starts with six
// zeroed joints, an identity pose, and motors, RAPID and EGM running.
func DialSimulator(addr string) (*Simulator, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		conn:  conn,
		codec: codec.New(),
		rbuf:  make([]byte, 65536),
		Cycle: domain.DefaultNominalCycleTime,
	}
	s.msg.HasHeader = true
	s.msg.Header.Type = domain.MessageData
	s.msg.HasFeedback = true
	s.msg.Feedback.Robot = make([]float64, 6)
	s.msg.Feedback.Pose.Orientation = domain.IdentityQuaternion
	s.msg.Feedback.HasPose = true
	s.SetStates(domain.MotorsOn, domain.RAPIDRunning, domain.EGMRunning)
	return s, nil
}

// SetJoints sets the robot joint feedback [deg].
func (s *Simulator) SetJoints(joints []float64) {
	s.msg.Feedback.Robot = domain.CopyFloats(s.msg.Feedback.Robot, joints)
}

// SetExternal sets the external axis feedback.
func (s *Simulator) SetExternal(joints []float64) {
	s.msg.Feedback.External = domain.CopyFloats(s.msg.Feedback.External, joints)
}

// SetPose sets the Cartesian feedback; a nil pose removes it from the messages.
func (s *Simulator) SetPose(p *Pose) {
	if p == nil {
		s.msg.Feedback.HasPose = false
		return
	}
	s.msg.Feedback.Pose, s.msg.Feedback.HasPose = *p, true
}

func (s *Simulator) SetStates(motor domain.MotorState, rapid domain.RAPIDState, egm domain.EGMState) {
	s.msg.MotorState, s.msg.RAPIDState, s.msg.EGMState = motor, rapid, egm
}

// Send transmits the current message without waiting for a reply, then advances the
// header.
func (s *Simulator) Send() error {
	s.buf = s.codec.AppendRobot(s.buf[:0], &s.msg)
	if _, err := s.conn.Write(s.buf); err != nil {
		return err
	}
	s.advance()
	return nil
}

// Step sends one message and waits up to timeout for the reply.
func (s *Simulator) Step(timeout time.Duration) (*SensorMessage, error) {
	if err := s.Send(); err != nil {
		return nil, err
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, err := s.conn.Read(s.rbuf)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", s.steps, err)
	}
	var reply domain.SensorMessage
	if err := s.codec.DecodeSensor(s.rbuf[:n], &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Header is the header the next message will carry.
func (s *Simulator) Header() Header { return s.msg.Header }

// Restart resets the sequence number and clock, as a controller does when EGM is
// restarted from RAPID.
func (s *Simulator) Restart() {
	s.msg.Header.Sequence = 0
	s.msg.Header.Timestamp = 0
}

func (s *Simulator) Close() error { return s.conn.Close() }

func (s *Simulator) advance() {
	s.steps++
	s.msg.Header.Sequence++
	s.msg.Header.Timestamp += uint32(s.Cycle / time.Millisecond)
}
