package ports

import (
	"context"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

// MetricSource enumerates what to collect and returns raw samples for one
// series over one window. An empty result with a nil error means "no data".
type MetricSource interface {
	ListScopes(ctx context.Context) ([]string, error)
	ListEntities(ctx context.Context, scope string) ([]domain.Entity, error)
	ListMetrics() []domain.MetricSpec
	Fetch(ctx context.Context, scope string, entity domain.Entity, metric domain.MetricSpec, window domain.TimeWindow) ([]domain.Sample, error)
}

// EntityKind is the capability set of one family of monitored resources
// (load balancers, instances, queues).
type EntityKind interface {
	Name() string
	Namespace() string
	Scopes(ctx context.Context) ([]string, error)
	Entities(ctx context.Context, scope string) ([]domain.Entity, error)
	Dimensions(scope string, entity domain.Entity) map[string]string
	Metrics() []domain.MetricSpec
}
