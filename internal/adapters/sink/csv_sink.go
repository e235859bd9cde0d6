package sink

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// CSVHeader lists the columns written by CSVSink, one row per control cycle. Vector
// columns hold space-separated values.
var CSVHeader = []string{
	"session_id", "received", "elapsed_s", "seq", "tm", "sample_time_s",
	"motor_state", "rapid_state", "egm_state",
	"feedback_joints", "feedback_joint_velocities", "feedback_position", "feedback_orientation",
	"reference_joints", "reference_position", "reference_orientation",
	"reply_seq", "replied",
}

type CSVSink struct {
	mu          sync.Mutex
	w           *csv.Writer
	closer      io.Closer
	wroteHeader bool
}

// NewCSVSink writes to w, starting with the header row.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// OpenCSV appends to path; the header row is only written to an empty file.
func OpenCSV(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &CSVSink{w: csv.NewWriter(f), closer: f, wroteHeader: info.Size() > 0}, nil
}

func (c *CSVSink) Name() string { return "csv" }

func (c *CSVSink) WriteBatch(records []*domain.CycleRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.wroteHeader {
		if err := c.w.Write(CSVHeader); err != nil {
			return err
		}
		c.wroteHeader = true
	}
	for _, r := range records {
		if err := c.w.Write(csvRow(r)); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func csvRow(r *domain.CycleRecord) []string {
	in, out := r.Input, r.Output
	return []string{
		r.SessionID,
		r.Received.Format(time.RFC3339Nano),
		formatFloat(r.Elapsed.Seconds()),
		strconv.FormatUint(uint64(in.Header.Sequence), 10),
		strconv.FormatUint(uint64(in.Header.Timestamp), 10),
		formatFloat(r.SampleTime),
		in.Status.MotorState.String(),
		in.Status.RAPIDState.String(),
		in.Status.EGMState.String(),
		formatFloats(in.Feedback.Joints),
		formatFloats(in.Velocity.Joints),
		formatCartesian(in.Feedback.Pose.Position),
		formatQuaternion(in.Feedback.Pose.Orientation),
		formatFloats(out.Joints),
		formatCartesian(out.Pose.Position),
		formatQuaternion(out.Pose.Orientation),
		strconv.FormatUint(uint64(out.Header.Sequence), 10),
		strconv.FormatBool(r.Replied),
	}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}

func formatCartesian(c domain.Cartesian) string {
	return formatFloats([]float64{c.X, c.Y, c.Z})
}

func formatQuaternion(q domain.Quaternion) string {
	return formatFloats([]float64{q.W, q.X, q.Y, q.Z})
}

var _ ports.CycleSink = (*CSVSink)(nil)
