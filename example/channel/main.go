package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/qcr/abb-libegm"
)

// Streams a simulated robot into a local endpoint and prints the logged cycles.
func main() {
	cfg := egm.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Robot.Demo.Enabled = true
	cfg.Robot.Demo.TargetJoints = []float64{0, 10, 0, 0, 30, 0}
	cfg.Robot.Demo.Duration = 2 * time.Second

	flow, err := egm.ConfFromConfig(cfg)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sink, batches, closeBatches := egm.NewChannelSink("fanout", 32)
	iface, err := flow.StreamOUT(egm.StreamOutSink(sink))
	if err != nil {
		log.Fatalf("build interface: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := iface.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		printWorker(batches)
	}()

	sim, err := egm.DialSimulator(iface.Addr().String())
	if err != nil {
		log.Fatalf("simulator: %v", err)
	}
	defer sim.Close()

	ticker := time.NewTicker(sim.Cycle)
	defer ticker.Stop()
	joints := make([]float64, 6)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
		reply, err := sim.Step(time.Second)
		if err != nil {
			log.Printf("step: %v", err)
			continue
		}
		// The simulated robot follows the reference exactly.
		copy(joints, reply.PlannedJoints)
		sim.SetJoints(joints)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := iface.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	closeBatches()
	<-done
}

func printWorker(batches <-chan []egm.CycleRecord) {
	for batch := range batches {
		last := batch[len(batch)-1]
		fmt.Printf("[%s] %d cycles, seq=%d reference=%v\n",
			time.Now().Format(time.RFC3339), len(batch), last.Output.Header.Sequence, last.Output.Joints)
	}
}
