package domain

import (
	"fmt"
	"time"
)

// Statistic is the CloudWatch aggregation applied to raw datapoints.
type Statistic string

const (
	StatisticSum         Statistic = "Sum"
	StatisticAverage     Statistic = "Average"
	StatisticMaximum     Statistic = "Maximum"
	StatisticMinimum     Statistic = "Minimum"
	StatisticSampleCount Statistic = "SampleCount"
)

// MetricKey identifies one time series: region, entity source name and the
// relay metric identifier. It is stable across restarts.
type MetricKey struct {
	Scope  string `json:"scope"`
	Entity string `json:"entity"`
	Metric string `json:"metric"`
}

func (k MetricKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Scope, k.Entity, k.Metric)
}

// Sample is one observed datapoint of a series.
type Sample struct {
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
	Statistic Statistic `json:"statistic"`
	// Name overrides the delivery name; empty means prefix + metric id.
	Name string `json:"name,omitempty"`
}

// Newer reports whether b is newer than a. Only timestamps are compared, so
// two samples sharing a timestamp are the same sample for dedup purposes even
// when their values differ.
func Newer(a, b Sample) bool {
	return b.Timestamp.After(a.Timestamp)
}

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) Span() time.Duration { return w.End.Sub(w.Start) }

// Entity is a monitored resource inside a scope (e.g. one load balancer).
type Entity struct {
	Name string
}

// MetricSpec declares one metric collected for every entity of a kind.
type MetricSpec struct {
	// Name is the CloudWatch metric name, e.g. HTTPCode_ELB_4XX.
	Name      string
	Statistic Statistic
	// ID is the relay metric identifier, e.g. AWS_ELB_HTTP_CODE_4XX.
	ID string
}

// Measurement is a single line handed to the relay. A zero Timestamp is
// omitted on the wire and the relay assumes "now".
type Measurement struct {
	Name      string
	Value     float64
	Source    string
	Timestamp time.Time
}

// Delivery pairs a delivered sample with its series.
type Delivery struct {
	Key    MetricKey
	Sample Sample
}
