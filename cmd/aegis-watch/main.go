// aegis-watch polls CloudWatch and forwards new datapoints to a metrics
// relay as lines on stdout. With no arguments it behaves like a relay plugin:
// it reads param.json from the working directory and runs until killed.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ghalamif/AegisWatch"
	"github.com/ghalamif/AegisWatch/internal/adapters/sink"
	"github.com/ghalamif/AegisWatch/internal/app/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		return runCommand(args)
	case "validate":
		return validateCommand(args, os.Stdout)
	case "fetch":
		return fetchCommand(args, os.Stdout)
	case "stats":
		return statsCommand(args)
	case "help":
		printUsage(os.Stderr)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parse returns false when help was requested.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return false, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return true, nil
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", config.DefaultPath, "path to param.json or a YAML config")
	verbose := fs.BoolP("verbose", "v", false, "log at info level")
	ok, err := parse(fs, args)
	if !ok {
		return err
	}

	cfg, err := aegiswatch.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *verbose {
		cfg.LogLevel = "info"
	}

	rt, err := aegiswatch.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", config.DefaultPath, "path to the config file to validate")
	ok, err := parse(fs, args)
	if !ok {
		return err
	}

	cfg, err := aegiswatch.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config %s ok: kind=%s poll=%s store=%s\n",
		*cfgPath, cfg.Kind, cfg.PollInterval(), cfg.StorePath())
	return nil
}

func fetchCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", config.DefaultPath, "path to param.json or a YAML config")
	timeout := fs.Duration("timeout", 2*time.Minute, "give up after this long")
	ok, err := parse(fs, args)
	if !ok {
		return err
	}

	cfg, err := aegiswatch.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// One-shot probes must not spin forever on bad credentials.
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 1
	}

	rt, err := aegiswatch.NewRuntime(cfg, aegiswatch.WithSink(aegiswatch.NewCallbackSink("discard", func(aegiswatch.Measurement) error { return nil })))
	if err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := rt.FetchLatest(ctx)
	if err != nil {
		return err
	}
	for _, line := range relayLines(res, cfg.MetricPrefix, cfg.Source) {
		if _, err := io.WriteString(out, line); err != nil {
			return err
		}
	}
	return nil
}

func relayLines(res aegiswatch.Result, prefix, source string) []string {
	keys := make([]aegiswatch.MetricKey, 0, len(res))
	for k := range res {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var lines []string
	for _, k := range keys {
		for _, s := range res[k] {
			name := s.Name
			if name == "" {
				name = prefix + k.Metric
			}
			lines = append(lines, sink.FormatLine(aegiswatch.Measurement{
				Name:      name,
				Value:     s.Value,
				Source:    k.Entity,
				Timestamp: s.Timestamp,
			}, source))
		}
	}
	return lines
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "refresh interval")
	ok, err := parse(fs, args)
	if !ok {
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
			if err := printMetricsSnapshot(ctx, *url, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"aegis_watch_samples_delivered_total",
	"aegis_watch_samples_skipped_total",
	"aegis_watch_fetch_errors_total",
	"aegis_watch_heartbeats_total",
	"aegis_watch_watermark_keys",
}

func printMetricsSnapshot(ctx context.Context, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scrape(resp.Body, statsTargets)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[%s] delivered=%.0f skipped=%.0f fetch_errors=%.0f heartbeats=%.0f series=%.0f\n",
		time.Now().Format(time.RFC3339),
		values[statsTargets[0]],
		values[statsTargets[1]],
		values[statsTargets[2]],
		values[statsTargets[3]],
		values[statsTargets[4]],
	)
	return nil
}

func scrape(r io.Reader, names []string) (map[string]float64, error) {
	values := make(map[string]float64, len(names))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, name := range names {
			if strings.HasPrefix(line, name+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, name+" %g", &value); err == nil {
					values[name] = value
				}
			}
		}
	}
	return values, scanner.Err()
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `aegis-watch: CloudWatch to metrics relay bridge

Usage:
  aegis-watch [command] [flags]

Commands:
  run        Poll CloudWatch and write relay lines to stdout (default)
  validate   Load and validate a config file without starting the agent
  fetch      Print the latest datapoint of every series once and exit
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  aegis-watch
  aegis-watch run --config ./param.json -v
  aegis-watch validate -c ./agent.yaml
  aegis-watch stats --url http://localhost:9100/metrics --interval 1s
`)
}
