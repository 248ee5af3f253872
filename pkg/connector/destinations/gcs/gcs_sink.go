// Package gcs provides a sink that writes each page as its own Cloud Storage
// object.
package gcs

import (
	"context"
	"io"
	"strconv"
	"sync/atomic"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/clients"
	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/artifact"
	"github.com/ajitpratap0/nebula-extract/pkg/logger"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// ObjectAttrs are the attributes set on each uploaded object.
type ObjectAttrs struct {
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// Bucket opens object writers. Cancelling ctx before Close abandons the
// upload.
type Bucket interface {
	NewWriter(ctx context.Context, key string, attrs ObjectAttrs) io.WriteCloser
	Close() error
}

// Sink writes one object per page.
type Sink struct {
	bucket  Bucket
	name    string
	namer   *artifact.Namer
	encoder *artifact.Encoder
	logger  *zap.Logger
	objects atomic.Int64
}

// New creates a GCS sink with Application Default Credentials, or the
// emulator named by cfg.Endpoint.
func New(ctx context.Context, cfg config.SinkConfig) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := clients.GoogleOptions{Endpoint: cfg.Endpoint}
	client, err := storage.NewClient(ctx, opts.ClientOptions()...)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to create storage client")
	}
	sink, err := NewWithBucket(cfg, &storageBucket{client: client, handle: client.Bucket(cfg.Bucket)})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return sink, nil
}

// NewWithBucket creates a GCS sink around an existing bucket.
func NewWithBucket(cfg config.SinkConfig, bucket Bucket) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "gcs sink requires bucket")
	}
	enc, err := artifact.NewEncoder(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Sink{
		bucket:  bucket,
		name:    cfg.Bucket,
		namer:   artifact.NewNamer(cfg.Prefix, enc.Algorithm()),
		encoder: enc,
		logger:  logger.Get().With(zap.String("component", "gcs_sink"), zap.String("bucket", cfg.Bucket)),
	}, nil
}

// Factory adapts New to the registry's sink factory signature.
func Factory(cfg config.SinkConfig) (core.BatchSink, error) {
	return New(context.Background(), cfg)
}

// BeginRun implements core.RunAware.
func (s *Sink) BeginRun(jobID, runID string) {
	s.namer.BeginRun(jobID, runID)
}

// Write uploads records as the next part object of the run.
func (s *Sink) Write(ctx context.Context, records []models.Record) error {
	body, err := s.encoder.Encode(records)
	if err != nil {
		return err
	}

	key := s.namer.Next()
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.NewWriter(wctx, key, ObjectAttrs{
		ContentType:     s.encoder.ContentType(),
		ContentEncoding: s.encoder.Algorithm().ContentEncoding(),
		Metadata:        map[string]string{"records": strconv.Itoa(len(records))},
	})
	if _, err := w.Write(body); err != nil {
		cancel()
		_ = w.Close()
		return s.uploadErr(err, key)
	}
	if err := w.Close(); err != nil {
		return s.uploadErr(err, key)
	}
	s.objects.Add(1)

	s.logger.Debug("page uploaded",
		zap.String("key", key),
		zap.Int("records", len(records)),
		zap.Int("bytes", len(body)))
	return nil
}

func (s *Sink) uploadErr(err error, key string) error {
	return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeSink, "failed to upload page").
		WithDetail("bucket", s.name).
		WithDetail("key", key)
}

// Close closes the storage client.
func (s *Sink) Close(context.Context) error {
	s.logger.Info("gcs sink closed", zap.Int64("objects", s.objects.Load()))
	if err := s.bucket.Close(); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeSink, "failed to close storage client")
	}
	return nil
}

// Objects returns the number of objects uploaded.
func (s *Sink) Objects() int64 { return s.objects.Load() }

type storageBucket struct {
	client *storage.Client
	handle *storage.BucketHandle
}

// NewWriter refuses to overwrite an existing object.
func (b *storageBucket) NewWriter(ctx context.Context, key string, attrs ObjectAttrs) io.WriteCloser {
	w := b.handle.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.ContentEncoding = attrs.ContentEncoding
	w.Metadata = attrs.Metadata
	return w
}

func (b *storageBucket) Close() error {
	return b.client.Close()
}
