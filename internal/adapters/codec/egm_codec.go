// Package codec implements the EGM protobuf schema (egm.proto) directly on the
// protobuf wire format.
package codec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// EgmRobot
const (
	robotHeader         protowire.Number = 1
	robotFeedback       protowire.Number = 2
	robotPlanned        protowire.Number = 3
	robotMotorState     protowire.Number = 4
	robotMCIState       protowire.Number = 5
	robotConvergenceMet protowire.Number = 6
	robotTestSignals    protowire.Number = 7
	robotRAPIDExecState protowire.Number = 8
	robotMeasuredForce  protowire.Number = 9
	robotUtilization    protowire.Number = 10
)

// EgmSensor
const (
	sensorHeader   protowire.Number = 1
	sensorPlanned  protowire.Number = 2
	sensorSpeedRef protowire.Number = 3
)

// EgmHeader
const (
	headerSeqno protowire.Number = 1
	headerTm    protowire.Number = 2
	headerMtype protowire.Number = 3
)

// EgmFeedBack and EgmPlanned share their layout.
const (
	channelJoints    protowire.Number = 1
	channelCartesian protowire.Number = 2
	channelExternal  protowire.Number = 3
	channelTime      protowire.Number = 4
)

// EgmSpeedRef
const (
	speedJoints     protowire.Number = 1
	speedCartesians protowire.Number = 2
	speedExternal   protowire.Number = 3
)

// EgmPose
const (
	posePos    protowire.Number = 1
	poseOrient protowire.Number = 2
	poseEuler  protowire.Number = 3
)

var (
	errMissingHeader = errors.New("missing header")
	errWireType      = errors.New("unexpected wire type")
)

// Codec is the protobuf EGM codec. It is stateless and safe for concurrent use.
type Codec struct{}

func New() Codec { return Codec{} }

// DecodeRobot parses an EgmRobot datagram.
func (Codec) DecodeRobot(data []byte, msg *domain.RobotMessage) error {
	msg.Reset()
	if err := decodeRobot(data, msg); err != nil {
		return domain.NewError("decode robot", domain.ErrParse, err)
	}
	if !msg.HasHeader {
		return domain.NewError("decode robot", domain.ErrParse, errMissingHeader)
	}
	return nil
}

// AppendSensor serializes an EgmSensor message.
func (Codec) AppendSensor(dst []byte, msg *domain.SensorMessage) ([]byte, error) {
	b := appendMessage(dst, sensorHeader, func(b []byte) []byte {
		return appendHeader(b, msg.Header)
	})

	if len(msg.PlannedJoints) > 0 || len(msg.PlannedExternal) > 0 || msg.HasPlannedPose {
		b = appendMessage(b, sensorPlanned, func(b []byte) []byte {
			if len(msg.PlannedJoints) > 0 {
				b = appendMessage(b, channelJoints, func(b []byte) []byte {
					return appendDoubles(b, 1, msg.PlannedJoints)
				})
			}
			if msg.HasPlannedPose {
				b = appendMessage(b, channelCartesian, func(b []byte) []byte {
					return appendPose(b, msg.PlannedPose)
				})
			}
			if len(msg.PlannedExternal) > 0 {
				b = appendMessage(b, channelExternal, func(b []byte) []byte {
					return appendDoubles(b, 1, msg.PlannedExternal)
				})
			}
			return b
		})
	}

	if len(msg.SpeedJoints) > 0 || len(msg.SpeedExternal) > 0 || len(msg.SpeedCartesian) > 0 {
		b = appendMessage(b, sensorSpeedRef, func(b []byte) []byte {
			if len(msg.SpeedJoints) > 0 {
				b = appendMessage(b, speedJoints, func(b []byte) []byte {
					return appendDoubles(b, 1, msg.SpeedJoints)
				})
			}
			if len(msg.SpeedCartesian) > 0 {
				b = appendMessage(b, speedCartesians, func(b []byte) []byte {
					return appendDoubles(b, 1, msg.SpeedCartesian)
				})
			}
			if len(msg.SpeedExternal) > 0 {
				b = appendMessage(b, speedExternal, func(b []byte) []byte {
					return appendDoubles(b, 1, msg.SpeedExternal)
				})
			}
			return b
		})
	}
	return b, nil
}

// AppendRobot serializes an EgmRobot message. The endpoint never sends these; it is
// used by simulators and tests.
func (Codec) AppendRobot(dst []byte, msg *domain.RobotMessage) []byte {
	b := dst
	if msg.HasHeader {
		b = appendMessage(b, robotHeader, func(b []byte) []byte {
			return appendHeader(b, msg.Header)
		})
	}
	if msg.HasFeedback {
		b = appendMessage(b, robotFeedback, func(b []byte) []byte {
			return appendChannel(b, msg.Feedback)
		})
	}
	if msg.HasPlanned {
		b = appendMessage(b, robotPlanned, func(b []byte) []byte {
			return appendChannel(b, msg.Planned)
		})
	}
	b = appendMessage(b, robotMotorState, func(b []byte) []byte {
		return appendVarintField(b, 1, uint64(msg.MotorState))
	})
	b = appendMessage(b, robotMCIState, func(b []byte) []byte {
		return appendVarintField(b, 1, uint64(msg.EGMState))
	})
	b = appendVarintField(b, robotConvergenceMet, boolToVarint(msg.ConvergenceMet))
	if len(msg.TestSignals) > 0 {
		b = appendMessage(b, robotTestSignals, func(b []byte) []byte {
			return appendDoubles(b, 1, msg.TestSignals)
		})
	}
	b = appendMessage(b, robotRAPIDExecState, func(b []byte) []byte {
		return appendVarintField(b, 1, uint64(msg.RAPIDState))
	})
	if msg.ForceActive || len(msg.Force) > 0 {
		b = appendMessage(b, robotMeasuredForce, func(b []byte) []byte {
			b = appendVarintField(b, 1, boolToVarint(msg.ForceActive))
			return appendDoubles(b, 2, msg.Force)
		})
	}
	if msg.HasUtilization {
		b = appendDoubleField(b, robotUtilization, msg.UtilizationRate)
	}
	return b
}

// DecodeSensor parses an EgmSensor message.
func (Codec) DecodeSensor(data []byte, msg *domain.SensorMessage) error {
	msg.Reset()
	err := eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case sensorHeader:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			return n, decodeHeader(v, &msg.Header)
		case sensorPlanned:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			var ch domain.WireJoints
			if err := decodeChannel(v, &ch); err != nil {
				return 0, err
			}
			msg.PlannedJoints, msg.PlannedExternal = ch.Robot, ch.External
			msg.PlannedPose, msg.HasPlannedPose = ch.Pose, ch.HasPose
			return n, nil
		case sensorSpeedRef:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			return n, decodeSpeedRef(v, msg)
		}
		return 0, nil
	})
	if err != nil {
		return domain.NewError("decode sensor", domain.ErrParse, err)
	}
	return nil
}

func decodeRobot(data []byte, msg *domain.RobotMessage) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case robotHeader:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			msg.HasHeader = true
			return n, decodeHeader(v, &msg.Header)
		case robotFeedback:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			msg.HasFeedback = true
			return n, decodeChannel(v, &msg.Feedback)
		case robotPlanned:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			msg.HasPlanned = true
			return n, decodeChannel(v, &msg.Planned)
		case robotMotorState, robotMCIState, robotRAPIDExecState:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			state, err := decodeState(v)
			if err != nil {
				return 0, err
			}
			switch num {
			case robotMotorState:
				msg.MotorState = domain.MotorState(state)
			case robotMCIState:
				msg.EGMState = domain.EGMState(state)
			default:
				msg.RAPIDState = domain.RAPIDState(state)
			}
			return n, nil
		case robotConvergenceMet:
			v, n, err := consumeVarint(typ, b)
			msg.ConvergenceMet = v != 0
			return n, err
		case robotTestSignals:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			msg.TestSignals, err = decodeDoubles(v, 1, msg.TestSignals)
			return n, err
		case robotMeasuredForce:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			return n, decodeForce(v, msg)
		case robotUtilization:
			v, n, err := consumeDouble(typ, b)
			msg.UtilizationRate, msg.HasUtilization = v, err == nil
			return n, err
		}
		return 0, nil
	})
}

func decodeHeader(data []byte, h *domain.Header) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case headerSeqno:
			v, n, err := consumeVarint(typ, b)
			h.Sequence = uint32(v)
			return n, err
		case headerTm:
			v, n, err := consumeVarint(typ, b)
			h.Timestamp = uint32(v)
			return n, err
		case headerMtype:
			v, n, err := consumeVarint(typ, b)
			h.Type = domain.MessageType(v)
			return n, err
		}
		return 0, nil
	})
}

func decodeChannel(data []byte, ch *domain.WireJoints) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case channelJoints, channelExternal:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			if num == channelJoints {
				ch.Robot, err = decodeDoubles(v, 1, ch.Robot)
			} else {
				ch.External, err = decodeDoubles(v, 1, ch.External)
			}
			return n, err
		case channelCartesian:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			ch.HasPose = true
			return n, decodePose(v, &ch.Pose)
		case channelTime:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			return n, decodeClock(v, &ch.Time)
		}
		return 0, nil
	})
}

func decodeSpeedRef(data []byte, msg *domain.SensorMessage) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < speedJoints || num > speedExternal {
			return 0, nil
		}
		v, n, err := consumeMessage(typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case speedJoints:
			msg.SpeedJoints, err = decodeDoubles(v, 1, msg.SpeedJoints)
		case speedCartesians:
			msg.SpeedCartesian, err = decodeDoubles(v, 1, msg.SpeedCartesian)
		case speedExternal:
			msg.SpeedExternal, err = decodeDoubles(v, 1, msg.SpeedExternal)
		}
		return n, err
	})
}

func decodePose(data []byte, p *domain.Pose) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case posePos:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			var xyz [3]float64
			err = decodeFixedDoubles(v, xyz[:])
			p.Position = domain.Cartesian{X: xyz[0], Y: xyz[1], Z: xyz[2]}
			return n, err
		case poseOrient:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			var u [4]float64
			err = decodeFixedDoubles(v, u[:])
			p.Orientation = domain.Quaternion{W: u[0], X: u[1], Y: u[2], Z: u[3]}
			return n, err
		case poseEuler:
			v, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			var xyz [3]float64
			err = decodeFixedDoubles(v, xyz[:])
			p.Euler = domain.Euler{X: xyz[0], Y: xyz[1], Z: xyz[2]}
			return n, err
		}
		return 0, nil
	})
}

func decodeClock(data []byte, c *domain.Clock) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			c.Sec = v
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			c.Usec = v
			return n, err
		}
		return 0, nil
	})
}

func decodeState(data []byte) (uint64, error) {
	var state uint64
	err := eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n, err := consumeVarint(typ, b)
		state = v
		return n, err
	})
	return state, err
}

func decodeForce(data []byte, msg *domain.RobotMessage) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			msg.ForceActive = v != 0
			return n, err
		case 2:
			var (
				n   int
				err error
			)
			msg.Force, n, err = appendDoubleValues(msg.Force, typ, b)
			return n, err
		}
		return 0, nil
	})
}

// decodeDoubles collects the repeated double field num of a message into dst.
func decodeDoubles(data []byte, field protowire.Number, dst []float64) ([]float64, error) {
	err := eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != field {
			return 0, nil
		}
		var (
			n   int
			err error
		)
		dst, n, err = appendDoubleValues(dst, typ, b)
		return n, err
	})
	return dst, err
}

// decodeFixedDoubles reads optional double fields 1..len(dst) into dst.
func decodeFixedDoubles(data []byte, dst []float64) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || int(num) > len(dst) {
			return 0, nil
		}
		v, n, err := consumeDouble(typ, b)
		dst[num-1] = v
		return n, err
	})
}

// eachField walks the fields of a message. fn returns the number of value bytes it
// consumed, or 0 to have the field skipped.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeMessage(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeDouble(typ protowire.Type, b []byte) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

// appendDoubleValues accepts both the unpacked (proto2 default) and packed encodings.
func appendDoubleValues(dst []float64, typ protowire.Type, b []byte) ([]float64, int, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n, err := consumeDouble(typ, b)
		if err != nil {
			return dst, 0, err
		}
		return append(dst, v), n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, 0, protowire.ParseError(n)
		}
		if len(packed)%8 != 0 {
			return dst, 0, fmt.Errorf("packed doubles: %d trailing bytes", len(packed)%8)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed64(packed)
			dst = append(dst, math.Float64frombits(v))
			packed = packed[m:]
		}
		return dst, n, nil
	default:
		return dst, 0, errWireType
	}
}

// appendMessage writes a length-delimited submessage produced by fn. One length byte
// is reserved up front; larger bodies are shifted to make room for the varint.
func appendMessage(b []byte, num protowire.Number, fn func([]byte) []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	start := len(b)
	b = append(b, 0)
	b = fn(b)
	size := len(b) - start - 1
	if size < 0x80 {
		b[start] = byte(size)
		return b
	}
	body := append([]byte(nil), b[start+1:]...)
	b = protowire.AppendVarint(b[:start], uint64(size))
	return append(b, body...)
}

func appendHeader(b []byte, h domain.Header) []byte {
	b = appendVarintField(b, headerSeqno, uint64(h.Sequence))
	b = appendVarintField(b, headerTm, uint64(h.Timestamp))
	return appendVarintField(b, headerMtype, uint64(h.Type))
}

func appendChannel(b []byte, ch domain.WireJoints) []byte {
	if len(ch.Robot) > 0 {
		b = appendMessage(b, channelJoints, func(b []byte) []byte {
			return appendDoubles(b, 1, ch.Robot)
		})
	}
	if ch.HasPose {
		b = appendMessage(b, channelCartesian, func(b []byte) []byte {
			return appendPose(b, ch.Pose)
		})
	}
	if len(ch.External) > 0 {
		b = appendMessage(b, channelExternal, func(b []byte) []byte {
			return appendDoubles(b, 1, ch.External)
		})
	}
	if ch.Time != (domain.Clock{}) {
		b = appendMessage(b, channelTime, func(b []byte) []byte {
			b = appendVarintField(b, 1, ch.Time.Sec)
			return appendVarintField(b, 2, ch.Time.Usec)
		})
	}
	return b
}

func appendPose(b []byte, p domain.Pose) []byte {
	b = appendMessage(b, posePos, func(b []byte) []byte {
		b = appendDoubleField(b, 1, p.Position.X)
		b = appendDoubleField(b, 2, p.Position.Y)
		return appendDoubleField(b, 3, p.Position.Z)
	})
	b = appendMessage(b, poseOrient, func(b []byte) []byte {
		b = appendDoubleField(b, 1, p.Orientation.W)
		b = appendDoubleField(b, 2, p.Orientation.X)
		b = appendDoubleField(b, 3, p.Orientation.Y)
		return appendDoubleField(b, 4, p.Orientation.Z)
	})
	if p.Euler != (domain.Euler{}) {
		b = appendMessage(b, poseEuler, func(b []byte) []byte {
			b = appendDoubleField(b, 1, p.Euler.X)
			b = appendDoubleField(b, 2, p.Euler.Y)
			return appendDoubleField(b, 3, p.Euler.Z)
		})
	}
	return b
}

// appendDoubles writes a repeated double unpacked, as proto2 does by default.
func appendDoubles(b []byte, num protowire.Number, vs []float64) []byte {
	for _, v := range vs {
		b = appendDoubleField(b, num, v)
	}
	return b
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func boolToVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

var _ ports.Codec = Codec{}
