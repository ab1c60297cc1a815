package heartbeat

import (
	"context"
	"time"

	"github.com/ghalamif/AegisWatch/internal/clock"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

const (
	// MetricName is the placeholder the relay receives as a keepalive.
	MetricName = "BOGUS_METRIC"
	// RelayTimeout is how long the relay tolerates silence before it kills
	// the agent.
	RelayTimeout = 30 * time.Second
	// DefaultInterval stays well under RelayTimeout to absorb scheduling
	// jitter.
	DefaultInterval = 15 * time.Second
)

// Heartbeat keeps the relay convinced the agent is alive while the main loop
// is blocked on long fetches.
type Heartbeat struct {
	sink     ports.Sink
	obs      ports.Observability
	clock    clock.Clock
	interval time.Duration
}

func New(sink ports.Sink, obs ports.Observability, clk clock.Clock, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Heartbeat{sink: sink, obs: obs, clock: clk, interval: interval}
}

// Beat emits one keepalive line.
func (h *Heartbeat) Beat() {
	if err := h.sink.Emit(domain.Measurement{Name: MetricName, Value: 0}); err != nil {
		h.obs.LogError("heartbeat_emit_failed", err)
		return
	}
	h.obs.IncCounter(ports.MetricHeartbeats, 1)
}

// Start runs the keepalive loop until ctx is cancelled. It beats once
// immediately and then every interval. The returned channel is closed when
// the loop has exited.
func (h *Heartbeat) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := h.clock.NewTicker(h.interval)
		defer ticker.Stop()

		h.Beat()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Beat()
			}
		}
	}()
	return done
}

var _ ports.Beater = (*Heartbeat)(nil)
