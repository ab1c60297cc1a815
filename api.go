package aegiswatch

import (
	"io"

	base "github.com/ghalamif/AegisWatch/pkg/aegiswatch"
)

// Re-exported errors for convenience.
var (
	ErrRetriesExhausted  = base.ErrRetriesExhausted
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/AegisWatch directly.
type (
	Config          = base.Config
	Policy          = base.Policy
	MetricsConfig   = base.MetricsConfig
	TimescaleConfig = base.TimescaleConfig
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Sample          = base.Sample
	MetricKey       = base.MetricKey
	Measurement     = base.Measurement
	MeasurementFunc = base.MeasurementFunc
	Delivery        = base.Delivery
	Watermarks      = base.Watermarks
	Entity          = base.Entity
	MetricSpec      = base.MetricSpec
	TimeWindow      = base.TimeWindow
	Statistic       = base.Statistic
	MetricSource    = base.MetricSource
	Sink            = base.Sink
	Archive         = base.Archive
	WatermarkStore  = base.WatermarkStore
	Observability   = base.Observability
	Field           = base.Field
	Clock           = base.Clock
	Result          = base.Result
	FetchError      = base.FetchError
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSource(src MetricSource) RuntimeOption {
	return base.WithSource(src)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithStore(st WatermarkStore) RuntimeOption {
	return base.WithStore(st)
}

func WithArchive(a Archive) RuntimeOption {
	return base.WithArchive(a)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithClock(clk Clock) RuntimeOption {
	return base.WithClock(clk)
}

func WithRelayOutput(w io.Writer) RuntimeOption {
	return base.WithRelayOutput(w)
}

// Sink adapters.
func NewCallbackSink(name string, fn MeasurementFunc) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Measurement, func()) {
	return base.NewChannelSink(name, buffer)
}
