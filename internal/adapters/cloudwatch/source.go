package cloudwatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"golang.org/x/time/rate"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Period is the statistics period in seconds. Metrics published at 5 minute
// resolution still come back, just less often, which is why callers query a
// 20 minute lookback and keep the newest datapoint.
const Period = 60

// Source reads one entity kind from CloudWatch.
type Source struct {
	kind    ports.EntityKind
	clients Clients
	limiter *rate.Limiter
}

func NewSource(kind ports.EntityKind, clients Clients, limiter *rate.Limiter) *Source {
	return &Source{kind: kind, clients: clients, limiter: limiter}
}

func (s *Source) ListScopes(ctx context.Context) ([]string, error) { return s.kind.Scopes(ctx) }

func (s *Source) ListEntities(ctx context.Context, scope string) ([]domain.Entity, error) {
	return s.kind.Entities(ctx, scope)
}

func (s *Source) ListMetrics() []domain.MetricSpec { return s.kind.Metrics() }

// Fetch returns the datapoints of one series inside w. CloudWatch labels
// every datapoint with the start of its period.
func (s *Source) Fetch(ctx context.Context, scope string, entity domain.Entity, metric domain.MetricSpec, w domain.TimeWindow) ([]domain.Sample, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.clients.CloudWatch(scope).GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(s.kind.Namespace()),
		MetricName: aws.String(metric.Name),
		StartTime:  aws.Time(w.Start),
		EndTime:    aws.Time(w.End),
		Period:     aws.Int32(Period),
		Statistics: []cwtypes.Statistic{cwtypes.Statistic(metric.Statistic)},
		Dimensions: dimensions(s.kind.Dimensions(scope, entity)),
	})
	if err != nil {
		return nil, fmt.Errorf("get metric statistics: %w", err)
	}

	out := make([]domain.Sample, 0, len(resp.Datapoints))
	for _, dp := range resp.Datapoints {
		if dp.Timestamp == nil {
			continue
		}
		v, ok := statisticValue(dp, metric.Statistic)
		if !ok {
			continue
		}
		out = append(out, domain.Sample{
			Timestamp: dp.Timestamp.UTC(),
			Value:     v,
			Statistic: metric.Statistic,
		})
	}
	return out, nil
}

func dimensions(dims map[string]string) []cwtypes.Dimension {
	names := make([]string, 0, len(dims))
	for n := range dims {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]cwtypes.Dimension, 0, len(dims))
	for _, n := range names {
		out = append(out, cwtypes.Dimension{Name: aws.String(n), Value: aws.String(dims[n])})
	}
	return out
}

func statisticValue(dp cwtypes.Datapoint, stat domain.Statistic) (float64, bool) {
	var v *float64
	switch stat {
	case domain.StatisticSum:
		v = dp.Sum
	case domain.StatisticAverage:
		v = dp.Average
	case domain.StatisticMaximum:
		v = dp.Maximum
	case domain.StatisticMinimum:
		v = dp.Minimum
	case domain.StatisticSampleCount:
		v = dp.SampleCount
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

var _ ports.MetricSource = (*Source)(nil)
