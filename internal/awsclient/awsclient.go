// Package awsclient builds the AWS SDK clients shared by every binary.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// Clients groups the service clients. Retries are handled by retry.Invoker,
// so the SDK's own retryer is limited to a single attempt.
type Clients struct {
	S3          *s3.Client
	DynamoDB    *dynamodb.Client
	Rekognition *rekognition.Client
	SFN         *sfn.Client
}

// LoadConfig resolves credentials and region from the default chain.
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	logger.Log.Debug("AWS config loaded",
		zap.String("region", awsCfg.Region),
		zap.String("endpoint", cfg.Endpoint),
	)

	return awsCfg, nil
}

// New creates all service clients. A non-empty cfg.Endpoint points every
// client at a local emulator such as LocalStack.
func New(ctx context.Context, cfg config.AWSConfig) (*Clients, error) {
	awsCfg, err := LoadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(awsCfg, cfg.Endpoint), nil
}

// NewFromConfig creates the clients from an already resolved aws.Config.
func NewFromConfig(awsCfg aws.Config, endpoint string) *Clients {
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}

	return &Clients{
		S3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = base
			o.UsePathStyle = base != nil
		}),
		DynamoDB: dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = base
		}),
		Rekognition: rekognition.NewFromConfig(awsCfg, func(o *rekognition.Options) {
			o.BaseEndpoint = base
		}),
		SFN: sfn.NewFromConfig(awsCfg, func(o *sfn.Options) {
			o.BaseEndpoint = base
		}),
	}
}
