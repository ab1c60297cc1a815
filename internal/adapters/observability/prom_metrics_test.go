package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghalamif/AegisWatch/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	obs.IncCounter(ports.MetricDelivered, 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricDelivered]); got != 5 {
		t.Fatalf("expected delivered counter 5, got %f", got)
	}

	obs.IncCounter(ports.MetricHeartbeats, 2)
	if got := testutil.ToFloat64(obs.counters[ports.MetricHeartbeats]); got != 2 {
		t.Fatalf("expected heartbeat counter 2, got %f", got)
	}

	obs.SetGauge(ports.MetricWatermarkKeys, 42)
	if got := testutil.ToFloat64(obs.gauges[ports.MetricWatermarkKeys]); got != 42 {
		t.Fatalf("expected watermark gauge 42, got %f", got)
	}

	obs.ObserveLatency(ports.MetricFetchLatency, 0.5)
	hCollector := obs.histos[ports.MetricFetchLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.IncCounter("unknown_metric", 1)
}

func TestPromObsLogsStructuredFields(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	t.Cleanup(func() { prometheus.DefaultRegisterer = origReg })
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	var buf bytes.Buffer
	obs := NewPromObs(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	obs.LogInfo("backfill_started", ports.Field{Key: "from", Value: "2024-03-01"})
	obs.LogError("fetch_failed", errors.New("throttled"), ports.Field{Key: "attempt", Value: 2})

	out := buf.String()
	for _, want := range []string{"msg=backfill_started", "from=2024-03-01", "msg=fetch_failed", "attempt=2", "error=throttled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	logger, closer, err := NewLogger(path, "info")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, _, err := NewLogger("", "verbose"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelError,
		"ERROR": slog.LevelError,
		"warn":  slog.LevelWarn,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
