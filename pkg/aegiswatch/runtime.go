package aegiswatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ghalamif/AegisWatch/internal/adapters/cloudwatch"
	"github.com/ghalamif/AegisWatch/internal/adapters/observability"
	"github.com/ghalamif/AegisWatch/internal/adapters/queue"
	"github.com/ghalamif/AegisWatch/internal/adapters/sink"
	"github.com/ghalamif/AegisWatch/internal/adapters/watermark"
	"github.com/ghalamif/AegisWatch/internal/app/agent"
	"github.com/ghalamif/AegisWatch/internal/app/fetch"
	"github.com/ghalamif/AegisWatch/internal/app/heartbeat"
	"github.com/ghalamif/AegisWatch/internal/app/pipeline"
	"github.com/ghalamif/AegisWatch/internal/app/window"
	"github.com/ghalamif/AegisWatch/internal/clock"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        MetricSource
	sink          Sink
	store         WatermarkStore
	archive       Archive
	observability Observability
	clock         Clock
	stdout        io.Writer
}

// WithSource replaces CloudWatch with any MetricSource (tests, other clouds).
func WithSource(src MetricSource) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithSink sends deliveries and keepalives somewhere other than stdout.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithStore lets callers keep watermarks somewhere other than the snapshot file.
func WithStore(st WatermarkStore) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = st
	}
}

// WithArchive plugs in an archive in place of the Timescale one.
func WithArchive(a Archive) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.archive = a
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithClock drives polling, retries and the keepalive from clk.
func WithClock(clk Clock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = clk
	}
}

// WithRelayOutput redirects the default relay sink away from os.Stdout.
func WithRelayOutput(w io.Writer) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.stdout = w
	}
}

// Runtime wires source -> fetcher -> delivery -> sink with the keepalive and
// watermark store, and exposes lifecycle hooks for embedding the agent in
// any Go program.
type Runtime struct {
	cfg     *Config
	policy  ports.Policy
	runID   string
	obs     ports.Observability
	clock   clock.Clock
	source  ports.MetricSource
	sink    ports.Sink
	store   ports.WatermarkStore
	archive ports.Archive
	fetcher *fetch.Fetcher
	agent   *agent.Agent
	db      *sql.DB
	closers []io.Closer

	metricsSrv *http.Server
}

// NewRuntime bootstraps the default adapters (CloudWatch source, stdout relay
// sink, snapshot file store, optional Timescale archive, slog + Prometheus
// observability). Any of them can be replaced with a RuntimeOption.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	r := &Runtime{
		cfg:    cfg,
		policy: cfg.Policy(),
		runID:  uuid.NewString(),
	}
	ok := false
	defer func() {
		if !ok {
			r.closeAll()
		}
	}()

	r.obs = overrides.observability
	if r.obs == nil {
		logger, closer, err := observability.NewLogger(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, closer)
		r.obs = observability.NewPromObs(logger.With("run_id", r.runID))
	}

	r.clock = overrides.clock
	if r.clock == nil {
		r.clock = clock.Real()
	}

	r.sink = overrides.sink
	if r.sink == nil {
		out := overrides.stdout
		if out == nil {
			out = os.Stdout
		}
		relay, err := sink.NewRelaySink(out, cfg.Source, cfg.ReportLogFile, r.obs)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, relay)
		r.sink = relay
	}

	r.store = overrides.store
	if r.store == nil {
		r.store = watermark.NewFileStore(cfg.StorePath(), r.obs)
	}

	r.archive = overrides.archive
	if r.archive == nil && cfg.Timescale.ConnString != "" {
		db, err := sql.Open("postgres", cfg.Timescale.ConnString)
		if err != nil {
			return nil, err
		}
		r.db = db
		r.archive = sink.NewTimescaleArchive(db, cfg.Timescale.Table)
	}

	r.source = overrides.source
	if r.source == nil {
		src, err := newCloudWatchSource(cfg)
		if err != nil {
			return nil, err
		}
		r.source = src
	}

	hb := heartbeat.New(r.sink, r.obs, r.clock, r.policy.KeepaliveInterval)
	r.fetcher = fetch.New(r.source, hb, r.obs, r.clock, newJobQueue, r.policy)
	delivery := pipeline.NewDelivery(r.sink, r.store, r.archive, r.obs, cfg.MetricPrefix)
	r.agent = agent.New(r.fetcher, delivery, r.store, hb, r.obs, r.clock, r.policy)

	ok = true
	return r, nil
}

func newJobQueue(capacity int) ports.JobQueue { return queue.NewMemQueue(capacity) }

func newCloudWatchSource(cfg *Config) (*cloudwatch.Source, error) {
	awsCfg, err := cloudwatch.LoadAWSConfig(context.Background(), cfg.AccessKeyID, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	clients := cloudwatch.NewAWSClients(awsCfg)

	limit, burst := rate.Inf, 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(math.Ceil(cfg.RequestsPerSecond))
	}
	limiter := rate.NewLimiter(limit, burst)

	kind, err := cloudwatch.NewKind(cfg.Kind, clients, limiter, cfg.Regions)
	if err != nil {
		return nil, err
	}
	return cloudwatch.NewSource(kind, clients, limiter), nil
}

// RunID tags every log line of this process.
func (r *Runtime) RunID() string { return r.runID }

// State reports whether the agent is backfilling or polling.
func (r *Runtime) State() agent.State { return r.agent.State() }

// Run starts the metrics server (when configured) and blocks in the agent
// loop until ctx is cancelled or a fatal error occurs. Resources are released
// before it returns.
func (r *Runtime) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.startMetrics()
	r.obs.LogInfo("agent_start",
		ports.Field{Key: "kind", Value: r.cfg.Kind},
		ports.Field{Key: "store", Value: r.cfg.StorePath()})

	runErr := r.agent.Run(ctx)
	if runErr != nil {
		r.obs.LogCritical("agent_stopped", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, r.Shutdown(shutdownCtx))
}

// FetchLatest performs one latest-only fetch over the lookback window
// without touching watermarks.
func (r *Runtime) FetchLatest(ctx context.Context) (Result, error) {
	lookback := r.policy.Lookback
	if lookback <= 0 {
		lookback = agent.DefaultLookback
	}
	return r.fetcher.FetchAll(ctx, window.Trailing(r.clock.Now(), lookback), true)
}

// Shutdown stops the metrics server and releases files and connections.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
		r.metricsSrv = nil
	}
	if err := r.closeAll(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (r *Runtime) closeAll() error {
	var errs []error
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
	}
	// Close in reverse so the logger outlives the sinks.
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	if r.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(r.agent.State()))
	})

	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := r.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()
}
