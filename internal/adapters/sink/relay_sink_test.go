package sink

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

func TestFormatLine(t *testing.T) {
	ts := time.Date(2024, 3, 1, 11, 23, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   domain.Measurement
		want string
	}{
		{
			name: "with timestamp",
			in:   domain.Measurement{Name: "AWS_ELB_REQUEST_COUNT", Value: 7, Source: "lb-a", Timestamp: ts},
			want: "AWS_ELB_REQUEST_COUNT 7 lb-a 1709292180000\n",
		},
		{
			name: "fractional value",
			in:   domain.Measurement{Name: "AWS_ELB_LATENCY", Value: 0.125, Source: "lb-a", Timestamp: ts},
			want: "AWS_ELB_LATENCY 0.125 lb-a 1709292180000\n",
		},
		{
			name: "default source and no timestamp",
			in:   domain.Measurement{Name: "BOGUS_METRIC", Value: 0},
			want: "BOGUS_METRIC 0 myhost\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatLine(tc.in, "myhost"); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestRelaySinkMirrorsToReportLog(t *testing.T) {
	var out bytes.Buffer
	reportLog := filepath.Join(t.TempDir(), "report.log")

	s, err := NewRelaySink(&out, "host-1", reportLog, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := s.Emit(domain.Measurement{Name: "A", Value: 1}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := s.Emit(domain.Measurement{Name: "B", Value: 2, Source: "lb"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := "A 1 host-1\nB 2 lb\n"
	if out.String() != want {
		t.Fatalf("stdout got %q want %q", out.String(), want)
	}
	mirrored, err := os.ReadFile(reportLog)
	if err != nil {
		t.Fatalf("read report log: %v", err)
	}
	if string(mirrored) != want {
		t.Fatalf("report log got %q want %q", mirrored, want)
	}

	if err := s.Emit(domain.Measurement{Name: "C"}); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed after close, got %v", err)
	}
}

// lockedWriter fails the test if two writes overlap.
type lockedWriter struct {
	mu     sync.Mutex
	busy   bool
	buf    bytes.Buffer
	failed bool
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.busy {
		w.failed = true
	}
	w.busy = true
	w.mu.Unlock()

	time.Sleep(10 * time.Microsecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	return w.buf.Write(p)
}

func TestRelaySinkSerializesConcurrentEmitters(t *testing.T) {
	w := &lockedWriter{}
	s, err := NewRelaySink(w, "host", "", nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Emit(domain.Measurement{Name: "X", Value: float64(j)})
			}
		}()
	}
	wg.Wait()

	if w.failed {
		t.Fatalf("writes overlapped")
	}
	lines := strings.Split(strings.TrimSuffix(w.buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("expected 400 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if len(strings.Fields(line)) != 3 {
			t.Fatalf("malformed line %q", line)
		}
	}
}

type countingObs struct {
	mu       sync.Mutex
	counters map[string]float64
	errors   []string
}

func (o *countingObs) LogInfo(string, ...ports.Field) {}
func (o *countingObs) LogError(msg string, _ error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, msg)
}
func (o *countingObs) LogCritical(string, error, ...ports.Field) {}
func (o *countingObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counters == nil {
		o.counters = make(map[string]float64)
	}
	o.counters[name] += v
}
func (o *countingObs) ObserveLatency(string, float64) {}
func (o *countingObs) SetGauge(string, float64)       {}

func TestRelaySinkReportLogFailureDoesNotFailEmit(t *testing.T) {
	var out bytes.Buffer
	obs := &countingObs{}
	s, err := NewRelaySink(&out, "host-1", filepath.Join(t.TempDir(), "report.log"), obs)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	// Every later mirror write fails with os.ErrClosed.
	if err := s.mirror.Close(); err != nil {
		t.Fatalf("close mirror: %v", err)
	}

	if err := s.Emit(domain.Measurement{Name: "A", Value: 1}); err != nil {
		t.Fatalf("emit must succeed once the relay has the line, got %v", err)
	}
	if out.String() != "A 1 host-1\n" {
		t.Fatalf("stdout got %q", out.String())
	}
	if got := obs.counters[ports.MetricReportLogErrors]; got != 1 {
		t.Fatalf("expected one report log error counted, got %v", got)
	}
	if len(obs.errors) != 1 || obs.errors[0] != "report_log_write_failed" {
		t.Fatalf("expected report log failure to be logged, got %v", obs.errors)
	}
}
