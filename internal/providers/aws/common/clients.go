// Package common is the sole entry point for AWS configuration and service
// client construction. Implementations must use the AWS SDK v2 only; never
// shell out to the aws CLI.
package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ---------------------------------------------------------------------------
// Per-service client interfaces
//
// Each interface covers only the operations used by this project. Using
// narrow interfaces instead of the full SDK clients makes mocking in unit
// tests trivial: create a struct that satisfies the interface and return
// canned data.
// ---------------------------------------------------------------------------

// STSClient is the subset of STS operations used by the broker and doctor.
type STSClient interface {
	AssumeRole(
		ctx context.Context,
		params *sts.AssumeRoleInput,
		optFns ...func(*sts.Options),
	) (*sts.AssumeRoleOutput, error)

	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// S3Client is the subset of S3 operations used by the mapping source and
// the policy store.
type S3Client interface {
	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// EC2RegionClient is the subset of EC2 operations used for region checks.
type EC2RegionClient interface {
	DescribeRegions(
		ctx context.Context,
		params *ec2.DescribeRegionsInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeRegionsOutput, error)
}

// ---------------------------------------------------------------------------
// ClientSet and ClientFactory
// ---------------------------------------------------------------------------

// ClientSet holds initialised AWS service clients for the dispatcher's own
// identity. All fields are interfaces so they can be replaced with mocks in
// tests without importing the AWS SDK in test files.
type ClientSet struct {
	STS STSClient
	S3  S3Client
	EC2 EC2RegionClient
}

// ClientFactory creates a ClientSet from an aws.Config.
// Swap this in tests to inject mock clients.
type ClientFactory func(cfg aws.Config) *ClientSet

// NewClientSet is the production ClientFactory.
func NewClientSet(cfg aws.Config) *ClientSet {
	return &ClientSet{
		STS: sts.NewFromConfig(cfg),
		S3:  s3.NewFromConfig(cfg),
		EC2: ec2.NewFromConfig(cfg),
	}
}

// LoadConfig loads the default AWS SDK configuration for the dispatcher's
// own identity. An empty region keeps the environment's region; when neither
// is set, us-east-1 is used so clients can always be constructed.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}
