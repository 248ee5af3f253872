package s3

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/compression"
	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

type upload struct {
	key      string
	body     []byte
	encoding string
	records  string
}

type fakeUploader struct {
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, upload{
		key:      aws.ToString(in.Key),
		body:     body,
		encoding: aws.ToString(in.ContentEncoding),
		records:  in.Metadata["records"],
	})
	return &manager.UploadOutput{Location: "s3://" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)}, nil
}

func TestSinkUploadsOneObjectPerPage(t *testing.T) {
	up := &fakeUploader{}
	sink, err := NewWithUploader(config.SinkConfig{Type: "s3", Bucket: "lake", Prefix: "raw", Compression: "zstd"}, up)
	require.NoError(t, err)

	ctx := context.Background()
	sink.BeginRun("orders", "run-7")
	require.NoError(t, sink.Write(ctx, sdk.Records(0, 4)))
	require.NoError(t, sink.Write(ctx, sdk.Records(4, 1)))
	require.NoError(t, sink.Close(ctx))

	require.Len(t, up.uploads, 2)
	assert.Equal(t, "raw/orders/run-7/part-000000.jsonl.zst", up.uploads[0].key)
	assert.Equal(t, "raw/orders/run-7/part-000001.jsonl.zst", up.uploads[1].key)
	assert.Equal(t, "4", up.uploads[0].records)

	raw, err := compression.Decompress(compression.Zstd, up.uploads[1].body)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":4}\n", string(raw))
	assert.Equal(t, int64(2), sink.Objects())
}

func TestSinkGzipContentEncoding(t *testing.T) {
	up := &fakeUploader{}
	sink, err := NewWithUploader(config.SinkConfig{Type: "s3", Bucket: "lake", Compression: "gzip"}, up)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), sdk.Records(0, 1)))
	assert.Equal(t, "gzip", up.uploads[0].encoding)
}

func TestSinkErrors(t *testing.T) {
	_, err := NewWithUploader(config.SinkConfig{Type: "s3"}, &fakeUploader{})
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConfig))

	sink, err := NewWithUploader(config.SinkConfig{Type: "s3", Bucket: "lake"}, &fakeUploader{err: errors.New("SlowDown")})
	require.NoError(t, err)
	err = sink.Write(context.Background(), sdk.Records(0, 1))
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeSink))
}
