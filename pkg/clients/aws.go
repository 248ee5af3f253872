// Package clients builds the cloud SDK clients shared by sources and sinks.
package clients

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// AWSOptions selects the region, endpoint and credentials of an AWS client.
// Empty credentials fall back to the default provider chain.
type AWSOptions struct {
	Region   string
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// LoadAWSConfig resolves an aws.Config for o. It reads the environment and
// shared config files but does not contact AWS.
func LoadAWSConfig(ctx context.Context, o AWSOptions) (aws.Config, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.Region))
	}
	if o.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, o.SessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	return cfg, nil
}

// NewS3Client creates an S3 client. A custom endpoint (MinIO, LocalStack)
// switches to path-style addressing.
func NewS3Client(cfg aws.Config, o AWSOptions) *s3.Client {
	return s3.NewFromConfig(cfg, func(opts *s3.Options) {
		if o.Endpoint != "" {
			opts.BaseEndpoint = aws.String(o.Endpoint)
			opts.UsePathStyle = true
		}
	})
}
