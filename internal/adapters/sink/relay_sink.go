package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// ErrSinkClosed is returned by Emit after Close.
var ErrSinkClosed = errors.New("relay sink closed")

// RelaySink writes measurements in the relay's text protocol:
//
//	<name> <value> <source>[ <epoch-millis>]
//
// One line per Write call, serialized by a mutex so concurrent emitters
// (heartbeat and delivery) never interleave.
type RelaySink struct {
	mu            sync.Mutex
	out           io.Writer
	mirror        *os.File
	defaultSource string
	obs           ports.Observability
	closed        bool
}

// NewRelaySink writes to out. When reportLog is non-empty every line is also
// appended to that file; mirror failures are reported through obs (may be
// nil) and never fail the emit, since the relay already has the line.
func NewRelaySink(out io.Writer, defaultSource, reportLog string, obs ports.Observability) (*RelaySink, error) {
	if defaultSource == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve hostname: %w", err)
		}
		defaultSource = host
	}

	s := &RelaySink{out: out, defaultSource: defaultSource, obs: obs}
	if reportLog != "" {
		f, err := os.OpenFile(reportLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open report log: %w", err)
		}
		s.mirror = f
	}
	return s, nil
}

func (s *RelaySink) Name() string { return "relay" }

func (s *RelaySink) Emit(m domain.Measurement) error {
	line := FormatLine(m, s.defaultSource)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if _, err := io.WriteString(s.out, line); err != nil {
		return fmt.Errorf("write relay line: %w", err)
	}
	if s.mirror != nil {
		if _, err := s.mirror.WriteString(line); err != nil && s.obs != nil {
			s.obs.IncCounter(ports.MetricReportLogErrors, 1)
			s.obs.LogError("report_log_write_failed", err, ports.Field{Key: "path", Value: s.mirror.Name()})
		}
	}
	return nil
}

func (s *RelaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.mirror != nil {
		return s.mirror.Close()
	}
	return nil
}

// FormatLine renders m including the trailing newline.
func FormatLine(m domain.Measurement, defaultSource string) string {
	source := m.Source
	if source == "" {
		source = defaultSource
	}

	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(m.Value, 'f', -1, 64))
	b.WriteByte(' ')
	b.WriteString(source)
	if !m.Timestamp.IsZero() {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(m.Timestamp.UnixMilli(), 10))
	}
	b.WriteByte('\n')
	return b.String()
}

var _ ports.Sink = (*RelaySink)(nil)
