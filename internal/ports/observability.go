package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	// RecordDrop accounts for a datagram or log record that was discarded.
	RecordDrop(reason string, err error)
}

type Field struct {
	Key   string
	Value any
}

// Metric names.
const (
	MetricMessagesReceived  = "egm_messages_received_total"
	MetricFallbackReplies   = "egm_fallback_replies_total"
	MetricRepliesSent       = "egm_replies_sent_total"
	MetricSessionsStarted   = "egm_sessions_started_total"
	MetricSessionTimeouts   = "egm_session_timeouts_total"
	MetricLogRecordsWritten = "egm_log_records_written_total"
	MetricSessionActive     = "egm_session_active"
	MetricSampleTime        = "egm_sample_time_seconds"
	MetricLogQueueLength    = "egm_log_queue_length"
	MetricCycleDuration     = "egm_cycle_duration_seconds"
	MetricSinkWriteDuration = "egm_sink_write_duration_seconds"
	MetricParseErrors       = "egm_parse_errors_total"
	MetricSchemaMismatch    = "egm_schema_mismatch_total"
	MetricDuplicatesDropped = "egm_duplicates_dropped_total"
	MetricLogRecordsDropped = "egm_log_records_dropped_total"
	MetricSinkErrors        = "egm_sink_errors_total"
	MetricSocketErrors      = "egm_socket_errors_total"
	MetricBytesReceived     = "egm_bytes_received_total"
	MetricJournalSize       = "egm_journal_size_bytes"
)

// Drop reasons understood by RecordDrop.
const (
	DropParse          = "parse"
	DropSchemaMismatch = "schema_mismatch"
	DropDuplicate      = "duplicate"
	DropLogQueueFull   = "log_queue_full"
	DropLogExpired     = "log_expired"
)

// NopObservability discards everything.
type NopObservability struct{}

func (NopObservability) LogInfo(string, ...Field)            {}
func (NopObservability) LogError(string, error, ...Field)    {}
func (NopObservability) LogCritical(string, error, ...Field) {}
func (NopObservability) IncCounter(string, float64)          {}
func (NopObservability) ObserveLatency(string, float64)      {}
func (NopObservability) SetGauge(string, float64)            {}
func (NopObservability) RecordDrop(string, error)            {}
