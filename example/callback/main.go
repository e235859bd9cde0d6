package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/qcr/abb-libegm/pkg/egm"
)

func main() {
	flow, err := egm.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []egm.CycleRecord) error {
		for _, rec := range batch {
			fmt.Printf("%s session=%s seq=%d dt=%.4fs joints=%v\n",
				rec.Received.Format(time.RFC3339Nano),
				rec.SessionID,
				rec.Input.Header.Sequence,
				rec.SampleTime,
				rec.Input.Feedback.Joints,
			)
		}
		return nil
	}

	if err := flow.Run(ctx, egm.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("interface error: %v", err)
	}
}
