// Package awsclient centralizes AWS SDK v2 config loading: one place
// resolves region/endpoint/credentials, every service client (Secrets
// Manager, SSM, SNS) is constructed from the same aws.Config.
package awsclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Config holds the parameters shared by every AWS service client a
// Shamell process constructs.
type Config struct {
	Region   string
	Endpoint string // LocalStack endpoint override for development
	Timeout  time.Duration
}

// Load resolves an aws.Config from cfg. When Endpoint is set, static test
// credentials are used so a LocalStack target never depends on the
// operator's real AWS identity.
func Load(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return awsCfg, nil
}
