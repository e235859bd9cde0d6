package ports

import "github.com/qcr/abb-libegm/internal/domain"

// Codec encodes and decodes the two fixed EGM message schemas.
type Codec interface {
	// DecodeRobot parses an EgmRobot datagram into msg. msg is reset first.
	DecodeRobot(data []byte, msg *domain.RobotMessage) error
	// AppendSensor serializes msg as an EgmSensor message appended to dst.
	AppendSensor(dst []byte, msg *domain.SensorMessage) ([]byte, error)
}
