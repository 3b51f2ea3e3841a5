package db

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// AWSIAMTokenProvider signs RDS IAM auth tokens with the default AWS
// credential chain (environment, shared config, instance role).
type AWSIAMTokenProvider struct {
	endpoint string
	region   string
	username string
}

// NewAWSIAMTokenProvider creates a provider for the RDS endpoint "host:port".
func NewAWSIAMTokenProvider(endpoint, region, username string) (*AWSIAMTokenProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("AWS IAM auth requires endpoint (host:port): %w", stockimport.ErrInvalidConfig)
	}
	if region == "" {
		return nil, fmt.Errorf("AWS IAM auth requires region (use --aws-region or $AWS_REGION): %w", stockimport.ErrInvalidConfig)
	}
	if username == "" {
		return nil, fmt.Errorf("AWS IAM auth requires database username: %w", stockimport.ErrInvalidConfig)
	}

	return &AWSIAMTokenProvider{
		endpoint: endpoint,
		region:   region,
		username: username,
	}, nil
}

func (p *AWSIAMTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.region))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	issued := time.Now()
	token, err := auth.BuildAuthToken(ctx, p.endpoint, p.region, p.username, cfg.Credentials)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build RDS auth token: %w", err)
	}

	return token, issued.Add(rdsTokenLifetime), nil
}

func (p *AWSIAMTokenProvider) String() string {
	return fmt.Sprintf("AWSIAMTokenProvider(endpoint=%s, region=%s, user=%s)", p.endpoint, p.region, p.username)
}
