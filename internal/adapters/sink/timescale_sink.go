package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

// OpenTimescale connects with the postgres driver and checks the table name.
func OpenTimescale(connString, table string) (*TimescaleSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	return NewTimescaleSink(db, table), nil
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// EnsureSchema creates the cycle table and turns it into a hypertable.
func (t *TimescaleSink) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + t.tableName + " (" +
			"session_id TEXT NOT NULL, ts TIMESTAMPTZ NOT NULL, seq BIGINT NOT NULL, robot_tm BIGINT NOT NULL, " +
			"sample_time DOUBLE PRECISION NOT NULL, input JSONB NOT NULL, output JSONB NOT NULL, replied BOOLEAN NOT NULL, " +
			"UNIQUE (session_id, seq, ts))",
		"SELECT create_hypertable('" + t.tableName + "', 'ts', if_not_exists => TRUE)",
	}
	for _, stmt := range stmts {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (t *TimescaleSink) WriteBatch(records []*domain.CycleRecord) error {
	if len(records) == 0 {
		return nil
	}

	// INSERT ... ON CONFLICT DO NOTHING keeps replays idempotent.
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (session_id, ts, seq, robot_tm, sample_time, input, output, replied) VALUES ")

	args := make([]any, 0, len(records)*8)
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8))

		in, err := json.Marshal(r.Input)
		if err != nil {
			return fmt.Errorf("marshal input: %w", err)
		}
		out, err := json.Marshal(r.Output)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}

		args = append(args,
			r.SessionID,
			r.Received,
			int64(r.Input.Header.Sequence),
			int64(r.Input.Header.Timestamp),
			r.SampleTime,
			in,
			out,
			r.Replied,
		)
	}

	b.WriteString(" ON CONFLICT (session_id, seq, ts) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

func (t *TimescaleSink) Close() error { return t.db.Close() }

var _ ports.CycleSink = (*TimescaleSink)(nil)
