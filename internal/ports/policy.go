package ports

import "time"

// LogPolicy bounds the decoupled logging pipeline.
type LogPolicy struct {
	MaxQueueLen  int
	MaxBatchSize int
	IdleSleep    time.Duration

	OnQueueFull string // "drop_newest", "drop_oldest"
}
