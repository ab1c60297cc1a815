package aegiswatch

import (
	"github.com/ghalamif/AegisWatch/internal/app/fetch"
	"github.com/ghalamif/AegisWatch/internal/clock"
	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Sample is one datapoint of a series.
type Sample = domain.Sample

// MetricKey identifies a series: region, entity and relay metric id.
type MetricKey = domain.MetricKey

// Measurement is one line handed to a Sink.
type Measurement = domain.Measurement

// Delivery is a sample paired with its series, as seen by an Archive.
type Delivery = domain.Delivery

// Watermarks holds the last delivered sample of every series.
type Watermarks = domain.Watermarks

type (
	Entity     = domain.Entity
	MetricSpec = domain.MetricSpec
	TimeWindow = domain.TimeWindow
	Statistic  = domain.Statistic
)

// MetricSource lists entities and fetches datapoints (CloudWatch by default).
type MetricSource = ports.MetricSource

// Sink receives every delivered sample and the keepalive lines.
type Sink = ports.Sink

// Archive receives delivered batches after the Sink accepted them.
type Archive = ports.Archive

// WatermarkStore persists watermarks across restarts.
type WatermarkStore = ports.WatermarkStore

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Clock drives polling, retries and the keepalive.
type Clock = clock.Clock

// Result maps each series to its fetched samples.
type Result = fetch.Result

// FetchError is returned once every retry attempt has failed.
type FetchError = fetch.FetchError

// ErrRetriesExhausted matches every *FetchError.
var ErrRetriesExhausted = fetch.ErrRetriesExhausted
