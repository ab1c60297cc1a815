package cloudwatch

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/time/rate"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Regions that are listed but do not serve the public endpoints.
var excludedRegions = map[string]bool{
	"cn-north-1":    true,
	"us-gov-west-1": true,
}

// NewKind returns the entity kind registered under name.
func NewKind(name string, clients Clients, limiter *rate.Limiter, regions []string) (ports.EntityKind, error) {
	b := base{clients: clients, limiter: limiter, regions: regions}
	switch name {
	case "", "elb":
		return &elbKind{base: b}, nil
	case "ec2":
		return &ec2Kind{base: b}, nil
	case "sqs":
		return &sqsKind{base: b}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", name)
	}
}

// KindNames lists the supported kinds.
func KindNames() []string { return []string{"elb", "ec2", "sqs"} }

type base struct {
	clients Clients
	limiter *rate.Limiter
	regions []string
}

func (b base) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// Scopes returns the configured regions, or every region EC2 reports.
func (b base) Scopes(ctx context.Context) ([]string, error) {
	if len(b.regions) > 0 {
		return b.regions, nil
	}
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := b.clients.EC2(HomeRegion).DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}
	var out []string
	for _, r := range resp.Regions {
		name := aws.ToString(r.RegionName)
		if name == "" || excludedRegions[name] {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

type elbKind struct{ base }

func (k *elbKind) Name() string      { return "elb" }
func (k *elbKind) Namespace() string { return "AWS/ELB" }

func (k *elbKind) Entities(ctx context.Context, scope string) ([]domain.Entity, error) {
	api := k.clients.LoadBalancers(scope)
	var (
		out    []domain.Entity
		marker *string
	)
	for {
		if err := k.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := api.DescribeLoadBalancers(ctx, &elasticloadbalancing.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}
		for _, lb := range resp.LoadBalancerDescriptions {
			out = append(out, domain.Entity{Name: aws.ToString(lb.LoadBalancerName)})
		}
		if aws.ToString(resp.NextMarker) == "" {
			return out, nil
		}
		marker = resp.NextMarker
	}
}

func (k *elbKind) Dimensions(_ string, e domain.Entity) map[string]string {
	return map[string]string{"LoadBalancerName": e.Name}
}

func (k *elbKind) Metrics() []domain.MetricSpec {
	return []domain.MetricSpec{
		{Name: "HealthyHostCount", Statistic: domain.StatisticAverage, ID: "AWS_ELB_HEALTHY_HOST_COUNT"},
		{Name: "UnHealthyHostCount", Statistic: domain.StatisticAverage, ID: "AWS_ELB_UNHEALTHY_HOST_COUNT"},
		{Name: "RequestCount", Statistic: domain.StatisticSum, ID: "AWS_ELB_REQUEST_COUNT"},
		{Name: "Latency", Statistic: domain.StatisticAverage, ID: "AWS_ELB_LATENCY"},
		{Name: "HTTPCode_ELB_4XX", Statistic: domain.StatisticSum, ID: "AWS_ELB_HTTP_CODE_4XX"},
		{Name: "HTTPCode_ELB_5XX", Statistic: domain.StatisticSum, ID: "AWS_ELB_HTTP_CODE_5XX"},
		{Name: "HTTPCode_Backend_2XX", Statistic: domain.StatisticSum, ID: "AWS_ELB_HTTP_CODE_BACKEND_2XX"},
		{Name: "HTTPCode_Backend_3XX", Statistic: domain.StatisticSum, ID: "AWS_ELB_HTTP_CODE_BACKEND_3XX"},
		{Name: "HTTPCode_Backend_4XX", Statistic: domain.StatisticSum, ID: "AWS_ELB_HTTP_CODE_BACKEND_4XX"},
		{Name: "HTTPCode_Backend_5XX", Statistic: domain.StatisticSum, ID: "AWS_ELB_HTTP_CODE_BACKEND_5XX"},
		{Name: "BackendConnectionErrors", Statistic: domain.StatisticSum, ID: "AWS_ELB_BACKEND_CONNECTION_ERRORS"},
		{Name: "SurgeQueueLength", Statistic: domain.StatisticMaximum, ID: "AWS_ELB_SURGE_QUEUE_LENGTH"},
		{Name: "SpilloverCount", Statistic: domain.StatisticSum, ID: "AWS_ELB_SPILLOVER_COUNT"},
	}
}

type ec2Kind struct{ base }

func (k *ec2Kind) Name() string      { return "ec2" }
func (k *ec2Kind) Namespace() string { return "AWS/EC2" }

func (k *ec2Kind) Entities(ctx context.Context, scope string) ([]domain.Entity, error) {
	api := k.clients.EC2(scope)
	var (
		out   []domain.Entity
		token *string
	)
	for {
		if err := k.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			NextToken: token,
			Filters: []ec2types.Filter{
				{Name: aws.String("instance-state-name"), Values: []string{"running"}},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, res := range resp.Reservations {
			for _, inst := range res.Instances {
				out = append(out, domain.Entity{Name: aws.ToString(inst.InstanceId)})
			}
		}
		if aws.ToString(resp.NextToken) == "" {
			return out, nil
		}
		token = resp.NextToken
	}
}

func (k *ec2Kind) Dimensions(_ string, e domain.Entity) map[string]string {
	return map[string]string{"InstanceId": e.Name}
}

func (k *ec2Kind) Metrics() []domain.MetricSpec {
	return []domain.MetricSpec{
		{Name: "CPUUtilization", Statistic: domain.StatisticAverage, ID: "AWS_EC2_CPU_UTILIZATION"},
		{Name: "NetworkIn", Statistic: domain.StatisticSum, ID: "AWS_EC2_NETWORK_IN"},
		{Name: "NetworkOut", Statistic: domain.StatisticSum, ID: "AWS_EC2_NETWORK_OUT"},
		{Name: "DiskReadOps", Statistic: domain.StatisticSum, ID: "AWS_EC2_DISK_READ_OPS"},
		{Name: "DiskWriteOps", Statistic: domain.StatisticSum, ID: "AWS_EC2_DISK_WRITE_OPS"},
		{Name: "StatusCheckFailed", Statistic: domain.StatisticMaximum, ID: "AWS_EC2_STATUS_CHECK_FAILED"},
	}
}

type sqsKind struct{ base }

func (k *sqsKind) Name() string      { return "sqs" }
func (k *sqsKind) Namespace() string { return "AWS/SQS" }

func (k *sqsKind) Entities(ctx context.Context, scope string) ([]domain.Entity, error) {
	api := k.clients.Queues(scope)
	var (
		out   []domain.Entity
		token *string
	)
	for {
		if err := k.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := api.ListQueues(ctx, &sqs.ListQueuesInput{NextToken: token})
		if err != nil {
			return nil, fmt.Errorf("list queues: %w", err)
		}
		for _, url := range resp.QueueUrls {
			out = append(out, domain.Entity{Name: path.Base(url)})
		}
		if aws.ToString(resp.NextToken) == "" {
			return out, nil
		}
		token = resp.NextToken
	}
}

func (k *sqsKind) Dimensions(_ string, e domain.Entity) map[string]string {
	return map[string]string{"QueueName": e.Name}
}

func (k *sqsKind) Metrics() []domain.MetricSpec {
	return []domain.MetricSpec{
		{Name: "ApproximateNumberOfMessagesVisible", Statistic: domain.StatisticAverage, ID: "AWS_SQS_MESSAGES_VISIBLE"},
		{Name: "NumberOfMessagesSent", Statistic: domain.StatisticSum, ID: "AWS_SQS_MESSAGES_SENT"},
		{Name: "NumberOfMessagesReceived", Statistic: domain.StatisticSum, ID: "AWS_SQS_MESSAGES_RECEIVED"},
		{Name: "NumberOfMessagesDeleted", Statistic: domain.StatisticSum, ID: "AWS_SQS_MESSAGES_DELETED"},
		{Name: "ApproximateAgeOfOldestMessage", Statistic: domain.StatisticMaximum, ID: "AWS_SQS_OLDEST_MESSAGE_AGE"},
	}
}
