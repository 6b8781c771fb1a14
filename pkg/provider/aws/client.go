package aws

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/opscart/rds-idle-manager/pkg/config"
)

// Client bundles the provider-side collaborators: RDS catalog and
// controller, CloudWatch metric source, SSM parameter source.
type Client struct {
	rds *rds.Client
	cw  *cloudwatch.Client
	ssm *ssm.Client

	tagKey           string
	tagValue         string
	defaultIdleParam string
}

// NewClient builds the AWS collaborators from the default credential chain
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		rds:              rds.NewFromConfig(awsCfg),
		cw:               cloudwatch.NewFromConfig(awsCfg),
		ssm:              ssm.NewFromConfig(awsCfg),
		tagKey:           cfg.RequiredTagKey,
		tagValue:         cfg.RequiredTagValue,
		defaultIdleParam: cfg.DefaultIdleParam,
	}, nil
}
