// Package s3 provides a continuation-token source over an S3 object listing.
package s3

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/clients"
	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// maxKeysLimit is the largest page ListObjectsV2 returns.
const maxKeysLimit = 1000

// ClientFactory builds the listing client from the source config.
type ClientFactory func(ctx context.Context, cfg *config.SourceConfig) (s3.ListObjectsV2APIClient, error)

// S3Source lists the objects of a bucket under a prefix, one record per object.
type S3Source struct {
	*base.BaseAdapter

	newClient ClientFactory
	client    s3.ListObjectsV2APIClient
	bucket    string
	prefix    string
	startKey  string
	limit     int32
}

// NewS3Source creates an unconnected S3 source using the AWS SDK client.
func NewS3Source() *S3Source {
	return &S3Source{
		BaseAdapter: base.NewBaseAdapter("s3", core.FamilyToken, "2.0.0"),
		newClient:   defaultClient,
	}
}

// New adapts NewS3Source to the registry's factory signature.
func New() core.Adapter { return NewS3Source() }

// WithClientFactory replaces the AWS SDK client, typically with a fake.
func (s *S3Source) WithClientFactory(f ClientFactory) *S3Source {
	s.newClient = f
	return s
}

func defaultClient(ctx context.Context, cfg *config.SourceConfig) (s3.ListObjectsV2APIClient, error) {
	opts := clients.AWSOptions{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.Credentials.Username,
		SecretAccessKey: cfg.Credentials.Password,
		SessionToken:    cfg.Credentials.Token,
	}
	awsCfg, err := clients.LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return clients.NewS3Client(awsCfg, opts), nil
}

// Connect validates cfg, builds the client and checks that the bucket can be listed.
func (s *S3Source) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	if err := s.Begin(cfg, "resource"); err != nil {
		return err
	}

	limit := cfg.PageLimit()
	if limit > maxKeysLimit {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "s3 source: page_size %d exceeds %d", limit, maxKeysLimit)
	}

	client, err := s.newClient(ctx, cfg)
	if err != nil {
		return err
	}

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()
	if _, err := client.ListObjectsV2(connectCtx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(cfg.Resource),
		Prefix:  aws.String(cfg.Prefix),
		MaxKeys: aws.Int32(1),
	}); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to list bucket").
			WithDetail("bucket", cfg.Resource)
	}

	s.client = client
	s.bucket = cfg.Resource
	s.prefix = cfg.Prefix
	s.startKey = cfg.StartKey
	s.limit = int32(limit)

	s.GetLogger().Info("Connected to S3",
		zap.String("bucket", s.bucket),
		zap.String("prefix", s.prefix),
		zap.Int32("page_size", s.limit))
	return s.MarkConnected()
}

// FetchPage lists one page. The empty token starts the listing; the
// continuation token of a truncated response continues it.
func (s *S3Source) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}
	token, _ := c.Token()

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix),
		MaxKeys: aws.Int32(s.limit),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	} else if s.startKey != "" {
		input.StartAfter = aws.String(s.startKey)
	}

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	out, err := s.client.ListObjectsV2(reqCtx, input)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to list objects").
			WithDetail("bucket", s.bucket)
	}

	records := make([]models.Record, 0, len(out.Contents))
	for _, obj := range out.Contents {
		record := models.Record{
			"bucket":        s.bucket,
			"key":           aws.ToString(obj.Key),
			"size":          aws.ToInt64(obj.Size),
			"etag":          aws.ToString(obj.ETag),
			"storage_class": string(obj.StorageClass),
		}
		if obj.LastModified != nil {
			record["last_modified"] = obj.LastModified.UTC().Format(time.RFC3339)
		}
		records = append(records, record)
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
		if next == "" {
			return nil, nebulaerrors.New(nebulaerrors.ErrorTypePagination,
				"truncated listing without a continuation token")
		}
	}
	return base.TokenPage(records, next), nil
}

// Disconnect drops the client. The SDK holds no session to close.
func (s *S3Source) Disconnect(ctx context.Context) error {
	s.client = nil
	return s.Release(ctx)
}
