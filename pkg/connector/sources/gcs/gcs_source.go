// Package gcs provides a page-token source over a Cloud Storage object listing.
package gcs

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/ajitpratap0/nebula-extract/pkg/clients"
	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// Lister lists one page of objects. An empty next token ends the listing.
type Lister interface {
	ListPage(ctx context.Context, bucket string, q *storage.Query, pageSize int, token string) ([]*storage.ObjectAttrs, string, error)
	Close() error
}

// ListerFactory builds the Lister from the source config.
type ListerFactory func(ctx context.Context, cfg *config.SourceConfig) (Lister, error)

// GCSSource lists the objects of a bucket under a prefix, one record per object.
type GCSSource struct {
	*base.BaseAdapter

	newLister ListerFactory
	lister    Lister
	bucket    string
	query     *storage.Query
	limit     int
}

// NewGCSSource creates an unconnected GCS source using the storage client.
func NewGCSSource() *GCSSource {
	return &GCSSource{
		BaseAdapter: base.NewBaseAdapter("gcs", core.FamilyToken, "2.0.0"),
		newLister:   newStorageLister,
	}
}

// New adapts NewGCSSource to the registry's factory signature.
func New() core.Adapter { return NewGCSSource() }

// WithListerFactory replaces the storage client, typically with a fake.
func (s *GCSSource) WithListerFactory(f ListerFactory) *GCSSource {
	s.newLister = f
	return s
}

// Connect validates cfg, creates the client and reads the bucket attributes.
func (s *GCSSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	if err := s.Begin(cfg, "resource"); err != nil {
		return err
	}

	lister, err := s.newLister(ctx, cfg)
	if err != nil {
		return err
	}
	s.OnRelease(func(context.Context) error { return lister.Close() })

	query := &storage.Query{Prefix: cfg.Prefix, StartOffset: cfg.StartKey, EndOffset: cfg.StopKey}
	if err := query.SetAttrSelection([]string{"Name", "Size", "Etag", "ContentType", "StorageClass", "Updated", "Generation"}); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to select object attributes")
	}

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()
	if _, _, err := lister.ListPage(connectCtx, cfg.Resource, query, 1, ""); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to list bucket").
			WithDetail("bucket", cfg.Resource)
	}

	s.lister = lister
	s.bucket = cfg.Resource
	s.query = query
	s.limit = cfg.PageLimit()

	s.GetLogger().Info("Connected to GCS",
		zap.String("bucket", s.bucket),
		zap.String("prefix", cfg.Prefix),
		zap.Int("page_size", s.limit))
	return s.MarkConnected()
}

// FetchPage lists the page named by the cursor's page token.
func (s *GCSSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}
	token, _ := c.Token()

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	objects, next, err := s.lister.ListPage(reqCtx, s.bucket, s.query, s.limit, token)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to list objects").
			WithDetail("bucket", s.bucket)
	}

	records := make([]models.Record, 0, len(objects))
	for _, obj := range objects {
		records = append(records, models.Record{
			"bucket":        s.bucket,
			"name":          obj.Name,
			"size":          obj.Size,
			"etag":          obj.Etag,
			"content_type":  obj.ContentType,
			"storage_class": obj.StorageClass,
			"generation":    obj.Generation,
			"updated":       obj.Updated.UTC().Format(time.RFC3339Nano),
		})
	}
	return base.TokenPage(records, next), nil
}

// Disconnect closes the client.
func (s *GCSSource) Disconnect(ctx context.Context) error {
	s.lister = nil
	return s.Release(ctx)
}

type storageLister struct {
	client *storage.Client
}

func newStorageLister(ctx context.Context, cfg *config.SourceConfig) (Lister, error) {
	opts := clients.GoogleOptions{
		CredentialsFile: cfg.Credentials.CredentialsFile,
		Token:           cfg.Credentials.Token,
		Endpoint:        cfg.Endpoint,
	}
	client, err := storage.NewClient(ctx, opts.ClientOptions()...)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to create storage client")
	}
	return &storageLister{client: client}, nil
}

func (l *storageLister) ListPage(ctx context.Context, bucket string, q *storage.Query, pageSize int, token string) ([]*storage.ObjectAttrs, string, error) {
	it := l.client.Bucket(bucket).Objects(ctx, q)
	var objects []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, pageSize, token).NextPage(&objects)
	if err != nil {
		return nil, "", err
	}
	return objects, next, nil
}

func (l *storageLister) Close() error {
	return l.client.Close()
}
