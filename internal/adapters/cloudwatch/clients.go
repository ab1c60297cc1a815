package cloudwatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// HomeRegion answers region discovery calls.
const HomeRegion = "us-east-1"

type MetricStatisticsAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

type LoadBalancersAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancing.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancing.Options)) (*elasticloadbalancing.DescribeLoadBalancersOutput, error)
}

type EC2API interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

type QueuesAPI interface {
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
}

// Clients hands out per-region service clients.
type Clients interface {
	CloudWatch(region string) MetricStatisticsAPI
	LoadBalancers(region string) LoadBalancersAPI
	EC2(region string) EC2API
	Queues(region string) QueuesAPI
}

// LoadAWSConfig resolves credentials. Static keys win when set; otherwise
// the default chain (environment, shared config, instance role) applies.
func LoadAWSConfig(ctx context.Context, accessKeyID, secretKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(HomeRegion)}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// AWSClients caches one client per service and region.
type AWSClients struct {
	base aws.Config

	mu            sync.Mutex
	cloudwatch    map[string]*cloudwatch.Client
	loadBalancers map[string]*elasticloadbalancing.Client
	ec2           map[string]*ec2.Client
	queues        map[string]*sqs.Client
}

func NewAWSClients(base aws.Config) *AWSClients {
	return &AWSClients{
		base:          base,
		cloudwatch:    make(map[string]*cloudwatch.Client),
		loadBalancers: make(map[string]*elasticloadbalancing.Client),
		ec2:           make(map[string]*ec2.Client),
		queues:        make(map[string]*sqs.Client),
	}
}

func (c *AWSClients) regional(region string) aws.Config {
	cfg := c.base.Copy()
	cfg.Region = region
	return cfg
}

func (c *AWSClients) CloudWatch(region string) MetricStatisticsAPI {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.cloudwatch[region]; ok {
		return cl
	}
	cl := cloudwatch.NewFromConfig(c.regional(region))
	c.cloudwatch[region] = cl
	return cl
}

func (c *AWSClients) LoadBalancers(region string) LoadBalancersAPI {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.loadBalancers[region]; ok {
		return cl
	}
	cl := elasticloadbalancing.NewFromConfig(c.regional(region))
	c.loadBalancers[region] = cl
	return cl
}

func (c *AWSClients) EC2(region string) EC2API {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.ec2[region]; ok {
		return cl
	}
	cl := ec2.NewFromConfig(c.regional(region))
	c.ec2[region] = cl
	return cl
}

func (c *AWSClients) Queues(region string) QueuesAPI {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.queues[region]; ok {
		return cl
	}
	cl := sqs.NewFromConfig(c.regional(region))
	c.queues[region] = cl
	return cl
}

var _ Clients = (*AWSClients)(nil)
