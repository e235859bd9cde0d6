package sink

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/qcr/abb-libegm/internal/domain"
)

func cycle(session string, seq uint32, ts time.Time) *domain.CycleRecord {
	return &domain.CycleRecord{
		SessionID:  session,
		Received:   ts,
		SampleTime: 0.004,
		Input: domain.Input{
			Header:   domain.Header{Sequence: seq, Timestamp: seq * 4},
			Feedback: domain.Feedback{Joints: []float64{1, 2, 3, 4, 5, 6}},
		},
		Output: domain.Output{
			Header: domain.Header{Sequence: seq},
			Joints: []float64{1, 2, 3, 4, 5, 6},
		},
		Replied: true,
	}
}

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "egm_cycles")
	ts := time.Now()

	expectedQuery := regexp.QuoteMeta("INSERT INTO egm_cycles (session_id, ts, seq, robot_tm, sample_time, input, output, replied) VALUES ($1,$2,$3,$4,$5,$6,$7,$8),($9,$10,$11,$12,$13,$14,$15,$16) ON CONFLICT (session_id, seq, ts) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"s1", ts, int64(7), int64(28), 0.004, sqlmock.AnyArg(), sqlmock.AnyArg(), true,
			"s1", ts, int64(8), int64(32), 0.004, sqlmock.AnyArg(), sqlmock.AnyArg(), true,
		).
		WillReturnResult(sqlmock.NewResult(2, 2))

	if err := sink.WriteBatch([]*domain.CycleRecord{cycle("s1", 7, ts), cycle("s1", 8, ts)}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkWriteBatchNoRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "egm_cycles")
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS egm_cycles (")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT create_hypertable('egm_cycles', 'ts', if_not_exists => TRUE)")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewTimescaleSink(db, "egm_cycles").EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOpenTimescaleRejectsBadTable(t *testing.T) {
	if _, err := OpenTimescale("postgres://localhost/db", "cycles; DROP TABLE x"); err == nil {
		t.Fatalf("expected invalid table name error")
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewTimescaleSink(db, "egm_cycles")
	if sink.Name() != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", sink.Name())
	}
}
