package cloudwatch

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/time/rate"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

type stubCloudWatch struct {
	inputs []*cloudwatch.GetMetricStatisticsInput
	out    *cloudwatch.GetMetricStatisticsOutput
	err    error
}

func (s *stubCloudWatch) GetMetricStatistics(_ context.Context, in *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type stubLoadBalancers struct {
	pages   []*elasticloadbalancing.DescribeLoadBalancersOutput
	markers []*string
}

func (s *stubLoadBalancers) DescribeLoadBalancers(_ context.Context, in *elasticloadbalancing.DescribeLoadBalancersInput, _ ...func(*elasticloadbalancing.Options)) (*elasticloadbalancing.DescribeLoadBalancersOutput, error) {
	s.markers = append(s.markers, in.Marker)
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

type stubEC2 struct {
	regions   *ec2.DescribeRegionsOutput
	instances *ec2.DescribeInstancesOutput
	filters   []ec2types.Filter
}

func (s *stubEC2) DescribeRegions(context.Context, *ec2.DescribeRegionsInput, ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return s.regions, nil
}

func (s *stubEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	s.filters = in.Filters
	return s.instances, nil
}

type stubQueues struct {
	out *sqs.ListQueuesOutput
}

func (s *stubQueues) ListQueues(context.Context, *sqs.ListQueuesInput, ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error) {
	return s.out, nil
}

type stubClients struct {
	cw      *stubCloudWatch
	elb     *stubLoadBalancers
	ec2     *stubEC2
	queues  *stubQueues
	regions []string
}

func (c *stubClients) CloudWatch(region string) MetricStatisticsAPI {
	c.regions = append(c.regions, region)
	return c.cw
}
func (c *stubClients) LoadBalancers(string) LoadBalancersAPI { return c.elb }
func (c *stubClients) EC2(string) EC2API                     { return c.ec2 }
func (c *stubClients) Queues(string) QueuesAPI               { return c.queues }

func unlimited() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) }

func TestNewKindDefaultsToELB(t *testing.T) {
	kind, err := NewKind("", &stubClients{}, unlimited(), nil)
	if err != nil {
		t.Fatalf("new kind: %v", err)
	}
	if kind.Name() != "elb" || kind.Namespace() != "AWS/ELB" {
		t.Fatalf("unexpected kind %s %s", kind.Name(), kind.Namespace())
	}
	if got := len(kind.Metrics()); got != 13 {
		t.Fatalf("expected 13 elb metrics, got %d", got)
	}
	if _, err := NewKind("rds", &stubClients{}, unlimited(), nil); err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
}

func TestScopesSkipsUnreachableRegions(t *testing.T) {
	clients := &stubClients{ec2: &stubEC2{regions: &ec2.DescribeRegionsOutput{
		Regions: []ec2types.Region{
			{RegionName: aws.String("us-west-2")},
			{RegionName: aws.String("cn-north-1")},
			{RegionName: aws.String("eu-west-1")},
			{RegionName: aws.String("us-gov-west-1")},
		},
	}}}
	kind, _ := NewKind("elb", clients, unlimited(), nil)

	got, err := kind.Scopes(context.Background())
	if err != nil {
		t.Fatalf("scopes: %v", err)
	}
	if want := []string{"eu-west-1", "us-west-2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("scopes = %v, want %v", got, want)
	}
}

func TestScopesPrefersConfiguredRegions(t *testing.T) {
	kind, _ := NewKind("elb", &stubClients{}, unlimited(), []string{"ap-south-1"})
	got, err := kind.Scopes(context.Background())
	if err != nil || !reflect.DeepEqual(got, []string{"ap-south-1"}) {
		t.Fatalf("scopes = %v err=%v", got, err)
	}
}

func TestELBEntitiesFollowMarker(t *testing.T) {
	elb := &stubLoadBalancers{pages: []*elasticloadbalancing.DescribeLoadBalancersOutput{
		{
			LoadBalancerDescriptions: []elbtypes.LoadBalancerDescription{{LoadBalancerName: aws.String("web")}},
			NextMarker:               aws.String("page-2"),
		},
		{
			LoadBalancerDescriptions: []elbtypes.LoadBalancerDescription{{LoadBalancerName: aws.String("api")}},
		},
	}}
	kind, _ := NewKind("elb", &stubClients{elb: elb}, unlimited(), nil)

	got, err := kind.Entities(context.Background(), "us-east-1")
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if want := []domain.Entity{{Name: "web"}, {Name: "api"}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("entities = %v, want %v", got, want)
	}
	if len(elb.markers) != 2 || elb.markers[0] != nil || aws.ToString(elb.markers[1]) != "page-2" {
		t.Fatalf("unexpected markers %v", elb.markers)
	}
}

func TestEC2EntitiesOnlyRunning(t *testing.T) {
	stub := &stubEC2{instances: &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{
			Instances: []ec2types.Instance{{InstanceId: aws.String("i-1")}, {InstanceId: aws.String("i-2")}},
		}},
	}}
	kind, _ := NewKind("ec2", &stubClients{ec2: stub}, unlimited(), nil)

	got, err := kind.Entities(context.Background(), "us-east-1")
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if len(got) != 2 || got[1].Name != "i-2" {
		t.Fatalf("unexpected entities %v", got)
	}
	if len(stub.filters) != 1 || aws.ToString(stub.filters[0].Name) != "instance-state-name" {
		t.Fatalf("expected running filter, got %+v", stub.filters)
	}
	if dims := kind.Dimensions("us-east-1", got[0]); dims["InstanceId"] != "i-1" {
		t.Fatalf("unexpected dimensions %v", dims)
	}
}

func TestSQSEntitiesUseQueueName(t *testing.T) {
	queues := &stubQueues{out: &sqs.ListQueuesOutput{
		QueueUrls: []string{"https://sqs.us-east-1.amazonaws.com/123456789012/orders"},
	}}
	kind, _ := NewKind("sqs", &stubClients{queues: queues}, unlimited(), nil)

	got, err := kind.Entities(context.Background(), "us-east-1")
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if len(got) != 1 || got[0].Name != "orders" {
		t.Fatalf("unexpected entities %v", got)
	}
}

func TestFetchBuildsRequestAndMapsDatapoints(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	cw := &stubCloudWatch{out: &cloudwatch.GetMetricStatisticsOutput{
		Datapoints: []cwtypes.Datapoint{
			{Timestamp: aws.Time(start.Add(time.Minute)), Sum: aws.Float64(7)},
			{Timestamp: aws.Time(start), Sum: aws.Float64(3)},
			{Timestamp: aws.Time(start.Add(2 * time.Minute)), Average: aws.Float64(1)},
			{Sum: aws.Float64(9)},
		},
	}}
	clients := &stubClients{cw: cw}
	kind, _ := NewKind("elb", clients, unlimited(), nil)
	src := NewSource(kind, clients, unlimited())

	metric := domain.MetricSpec{Name: "RequestCount", Statistic: domain.StatisticSum, ID: "AWS_ELB_REQUEST_COUNT"}
	window := domain.TimeWindow{Start: start, End: start.Add(20 * time.Minute)}
	got, err := src.Fetch(context.Background(), "eu-west-1", domain.Entity{Name: "web"}, metric, window)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 samples with a Sum, got %v", got)
	}
	if got[0].Value != 7 || got[1].Value != 3 || got[0].Statistic != domain.StatisticSum {
		t.Fatalf("unexpected samples %+v", got)
	}

	if len(clients.regions) != 1 || clients.regions[0] != "eu-west-1" {
		t.Fatalf("expected regional client, got %v", clients.regions)
	}
	in := cw.inputs[0]
	if aws.ToString(in.Namespace) != "AWS/ELB" || aws.ToString(in.MetricName) != "RequestCount" {
		t.Fatalf("unexpected request %+v", in)
	}
	if aws.ToInt32(in.Period) != Period || !in.StartTime.Equal(window.Start) || !in.EndTime.Equal(window.End) {
		t.Fatalf("unexpected period or window %+v", in)
	}
	if len(in.Statistics) != 1 || in.Statistics[0] != cwtypes.StatisticSum {
		t.Fatalf("unexpected statistics %v", in.Statistics)
	}
	if len(in.Dimensions) != 1 || aws.ToString(in.Dimensions[0].Name) != "LoadBalancerName" || aws.ToString(in.Dimensions[0].Value) != "web" {
		t.Fatalf("unexpected dimensions %+v", in.Dimensions)
	}
}

func TestFetchPropagatesErrors(t *testing.T) {
	boom := errors.New("throttled")
	clients := &stubClients{cw: &stubCloudWatch{err: boom}}
	kind, _ := NewKind("elb", clients, unlimited(), nil)
	src := NewSource(kind, clients, unlimited())

	_, err := src.Fetch(context.Background(), "us-east-1", domain.Entity{Name: "web"}, kind.Metrics()[0], domain.TimeWindow{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestFetchHonoursCancelledLimiter(t *testing.T) {
	clients := &stubClients{cw: &stubCloudWatch{out: &cloudwatch.GetMetricStatisticsOutput{}}}
	kind, _ := NewKind("elb", clients, unlimited(), nil)
	src := NewSource(kind, clients, rate.NewLimiter(rate.Every(time.Hour), 1))

	// Drain the single token so the next Wait must block.
	ctx := context.Background()
	if _, err := src.Fetch(ctx, "us-east-1", domain.Entity{Name: "web"}, kind.Metrics()[0], domain.TimeWindow{}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := src.Fetch(cancelled, "us-east-1", domain.Entity{Name: "web"}, kind.Metrics()[0], domain.TimeWindow{}); err == nil {
		t.Fatalf("expected cancelled wait to fail")
	}
	if got := len(clients.cw.inputs); got != 1 {
		t.Fatalf("expected one API call, got %d", got)
	}
}
