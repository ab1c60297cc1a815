package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/AegisWatch/internal/ports"
)

type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the agent metrics on the default registerer and logs
// through logger. A nil logger falls back to slog.Default.
func NewPromObs(logger *slog.Logger) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}

	delivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricDelivered,
		Help: "Samples emitted to the relay.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSkipped,
		Help: "Fetched samples not newer than their watermark.",
	})
	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricFetchErrors,
		Help: "Failed fetch passes against the telemetry source.",
	})
	heartbeats := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricHeartbeats,
		Help: "Keepalive lines emitted to the relay.",
	})
	archiveErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricArchiveErrors,
		Help: "Delivered batches the archive failed to store.",
	})
	reportLogErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricReportLogErrors,
		Help: "Relay lines the report log failed to mirror.",
	})
	keys := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricWatermarkKeys,
		Help: "Series tracked in the watermark store.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricFetchLatency,
		Help:    "Duration of one successful fetch pass.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	prometheus.MustRegister(delivered, skipped, fetchErrors, heartbeats, archiveErrors, reportLogErrors, keys, latency)

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricDelivered:       delivered,
			ports.MetricSkipped:         skipped,
			ports.MetricFetchErrors:     fetchErrors,
			ports.MetricHeartbeats:      heartbeats,
			ports.MetricArchiveErrors:   archiveErrors,
			ports.MetricReportLogErrors: reportLogErrors,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricWatermarkKeys: keys,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricFetchLatency: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), "error", err)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), "error", err, "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
