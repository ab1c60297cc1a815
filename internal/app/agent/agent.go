// Package agent drives the collector: one backfill pass after startup, then
// a steady poll loop, with the heartbeat running underneath both.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatch/internal/app/fetch"
	"github.com/ghalamif/AegisWatch/internal/app/window"
	"github.com/ghalamif/AegisWatch/internal/clock"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

const (
	DefaultPollInterval = time.Second
	// DefaultLookback covers metrics published at 5 minute resolution, which
	// can show up several minutes late.
	DefaultLookback       = 20 * time.Minute
	DefaultBackfillBuffer = 20 * time.Minute
	// DefaultMaxBackfill matches CloudWatch's retention of 1 minute data.
	DefaultMaxBackfill = 14 * 24 * time.Hour
)

type State string

const (
	StateIdle     State = "idle"
	StateBackfill State = "startup_backfill"
	StatePoll     State = "steady_poll"
	StateStopped  State = "stopped"
)

type Fetcher interface {
	FetchAll(ctx context.Context, windows []domain.TimeWindow, onlyLatest bool) (fetch.Result, error)
}

type Deliverer interface {
	Deliver(fetched map[domain.MetricKey][]domain.Sample, marks domain.Watermarks) error
}

// Keepalive is started once per Run and must stop when its context ends.
type Keepalive interface {
	Start(ctx context.Context) <-chan struct{}
}

type Agent struct {
	fetcher   Fetcher
	delivery  Deliverer
	store     ports.WatermarkStore
	keepalive Keepalive
	obs       ports.Observability
	clock     clock.Clock

	pollInterval   time.Duration
	lookback       time.Duration
	backfillBuffer time.Duration
	maxBackfill    time.Duration

	mu    sync.Mutex
	state State
}

func New(fetcher Fetcher, delivery Deliverer, store ports.WatermarkStore, keepalive Keepalive,
	obs ports.Observability, clk clock.Clock, pol ports.Policy) *Agent {
	if clk == nil {
		clk = clock.Real()
	}
	return &Agent{
		fetcher:        fetcher,
		delivery:       delivery,
		store:          store,
		keepalive:      keepalive,
		obs:            obs,
		clock:          clk,
		pollInterval:   orDefault(pol.PollInterval, DefaultPollInterval),
		lookback:       orDefault(pol.Lookback, DefaultLookback),
		backfillBuffer: orDefault(pol.BackfillBuffer, DefaultBackfillBuffer),
		maxBackfill:    orDefault(pol.MaxBackfill, DefaultMaxBackfill),
		state:          StateIdle,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.obs.LogInfo("agent_state", ports.Field{Key: "state", Value: string(s)})
}

// Run blocks until ctx is cancelled (nil) or a fatal error occurs. The
// keepalive is stopped and joined before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := a.keepalive.Start(hbCtx)
	defer func() {
		stopHeartbeat()
		<-hbDone
		a.setState(StateStopped)
	}()

	marks := a.store.Load()
	a.obs.SetGauge(ports.MetricWatermarkKeys, float64(len(marks)))

	if len(marks) > 0 {
		a.setState(StateBackfill)
		if err := a.Backfill(ctx, marks); err != nil {
			return a.exitErr(ctx, err)
		}
	}

	a.setState(StatePoll)
	for {
		if err := a.PollOnce(ctx, marks); err != nil {
			return a.exitErr(ctx, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-a.clock.After(a.pollInterval):
		}
	}
}

func (a *Agent) exitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// BackfillWindows returns the windows that recover everything published
// since the oldest watermark, minus a safety buffer, capped at the retention
// horizon.
func (a *Agent) BackfillWindows(marks domain.Watermarks, now time.Time) []domain.TimeWindow {
	earliest, ok := marks.Earliest()
	if !ok {
		return nil
	}
	start := earliest.Add(-a.backfillBuffer)
	if floor := now.Add(-a.maxBackfill); start.Before(floor) {
		start = floor
	}
	return window.Split(start, now, window.MaxSpan)
}

// Backfill fetches every datapoint since the oldest watermark and delivers
// the ones not yet reported.
func (a *Agent) Backfill(ctx context.Context, marks domain.Watermarks) error {
	windows := a.BackfillWindows(marks, a.clock.Now())
	if len(windows) == 0 {
		return nil
	}
	a.obs.LogInfo("backfill_start",
		ports.Field{Key: "from", Value: windows[0].Start},
		ports.Field{Key: "windows", Value: len(windows)})

	fetched, err := a.fetcher.FetchAll(ctx, windows, false)
	if err != nil {
		return err
	}
	return a.delivery.Deliver(fetched, marks)
}

// PollOnce fetches the newest datapoint of every series in the lookback
// window and delivers it if unseen.
func (a *Agent) PollOnce(ctx context.Context, marks domain.Watermarks) error {
	fetched, err := a.fetcher.FetchAll(ctx, window.Trailing(a.clock.Now(), a.lookback), true)
	if err != nil {
		return err
	}
	return a.delivery.Deliver(fetched, marks)
}
