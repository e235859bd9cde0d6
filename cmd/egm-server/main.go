package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/qcr/abb-libegm"
	"github.com/qcr/abb-libegm/internal/adapters/sink"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "replay":
		err = replayCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("egm-server %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to endpoint configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := egm.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := egm.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	ic := cfg.Interface()
	fmt.Printf("config %s looks good: %s on %s, axes=%d mode=%s demo=%t logging=%t\n",
		*cfgPath, "udp", cfg.Server.Address(), ic.Axes, ic.Mode, ic.Demo.Enabled, ic.Logging.Enabled)
	return nil
}

func replayCommand(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	dir := fs.String("dir", "./data/journal", "Journal directory")
	format := fs.String("format", "csv", "Output format: csv or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	var s egm.CycleSink
	switch *format {
	case "csv":
		s = sink.NewCSVSink(out)
	case "json":
		enc := json.NewEncoder(out)
		s = egm.NewCallbackSink("json", func(batch []egm.CycleRecord) error {
			for i := range batch {
				if err := enc.Encode(&batch[i]); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := egm.ReplayJournal(ctx, *dir, 500, s)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "replayed %d cycles from %s\n", n, *dir)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"egm_messages_received_total",
	"egm_replies_sent_total",
	"egm_parse_errors_total",
	"egm_session_active",
	"egm_sample_time_seconds",
	"egm_log_queue_length",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(statsTargets))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range statsTargets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] rx=%.0f tx=%.0f parse_errors=%.0f active=%.0f dt=%.4fs log_queue=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["egm_messages_received_total"],
		values["egm_replies_sent_total"],
		values["egm_parse_errors_total"],
		values["egm_session_active"],
		values["egm_sample_time_seconds"],
		values["egm_log_queue_length"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`egm-server: ABB Externally Guided Motion endpoint

Usage:
  egm-server <command> [flags]

Commands:
  run        Start the EGM endpoint using the provided config
  validate   Load and validate a config file without binding the socket
  stats      Poll the Prometheus metrics endpoint and print live counters
  replay     Print a cycle journal as CSV or JSON lines

Examples:
  egm-server run -config ./data/config.yaml
  egm-server validate -config ./data/config.yaml
  egm-server stats -url http://localhost:9100/metrics -interval 1s
  egm-server replay -dir ./data/journal -format json
`)
}
