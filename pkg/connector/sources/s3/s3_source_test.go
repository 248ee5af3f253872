package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// fakeLister serves a sorted key space with integer continuation tokens.
type fakeLister struct {
	keys  []string
	err   error
	calls []*s3.ListObjectsV2Input
}

func newFakeLister(keys ...string) *fakeLister {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return &fakeLister{keys: sorted}
}

func (f *fakeLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}

	var matching []string
	for _, k := range f.keys {
		if len(k) >= len(aws.ToString(in.Prefix)) && k[:len(aws.ToString(in.Prefix))] == aws.ToString(in.Prefix) &&
			k > aws.ToString(in.StartAfter) {
			matching = append(matching, k)
		}
	}

	start := 0
	if in.ContinuationToken != nil {
		n, err := strconv.Atoi(*in.ContinuationToken)
		if err != nil {
			return nil, fmt.Errorf("bad token %q", *in.ContinuationToken)
		}
		start = n
	}
	end := start + int(aws.ToInt32(in.MaxKeys))
	if end > len(matching) {
		end = len(matching)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(matching))}
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, k := range matching[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(k))),
			ETag:         aws.String(`"etag-` + k + `"`),
			LastModified: &modified,
			StorageClass: types.ObjectStorageClassStandard,
		})
	}
	if end < len(matching) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func sourceWith(lister s3.ListObjectsV2APIClient) *S3Source {
	return NewS3Source().WithClientFactory(func(context.Context, *config.SourceConfig) (s3.ListObjectsV2APIClient, error) {
		return lister, nil
	})
}

func bucketConfig(pageSize int) *config.SourceConfig {
	cfg := config.NewSourceConfig("s3")
	cfg.Resource = "landing"
	cfg.Prefix = "raw/"
	cfg.PageSize = pageSize
	return cfg
}

func TestS3SourceContract(t *testing.T) {
	lister := newFakeLister("raw/a.json", "raw/b.json", "raw/c.json", "raw/d.json", "raw/e.json", "other/x.json")

	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(lister), bucketConfig(2))

	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 2)
	assert.Len(t, pages[1], 2)
	assert.Len(t, pages[2], 1)
	assert.Equal(t, "raw/e.json", pages[2][0]["key"])
	assert.Equal(t, "landing", pages[2][0]["bucket"])
	assert.Equal(t, int64(10), pages[2][0]["size"])
	assert.Equal(t, "2024-01-02T03:04:05Z", pages[2][0]["last_modified"])
	assert.Equal(t, "STANDARD", pages[2][0]["storage_class"])

	// The probe in Connect, then one listing per page.
	require.Len(t, lister.calls, 4)
	assert.Nil(t, lister.calls[1].ContinuationToken)
	assert.Equal(t, "2", aws.ToString(lister.calls[2].ContinuationToken))
}

func TestS3SourceEmptyPrefix(t *testing.T) {
	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(newFakeLister("other/x.json")), bucketConfig(10))
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0])
}

func TestS3SourceStartAfter(t *testing.T) {
	lister := newFakeLister("raw/a", "raw/b", "raw/c")
	src := sourceWith(lister)
	cfg := bucketConfig(10)
	cfg.StartKey = "raw/a"
	ctx := context.Background()

	require.NoError(t, src.Connect(ctx, cfg))
	defer src.Disconnect(ctx) //nolint:errcheck

	page, err := src.FetchPage(ctx, src.Start())
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.True(t, page.Next.Exhausted())
}

func TestS3SourceErrors(t *testing.T) {
	suite := sdk.NewTestSuite(t)

	t.Run("missing bucket", func(t *testing.T) {
		suite.TestRejectsConfig(sourceWith(newFakeLister()), config.NewSourceConfig("s3"))
	})

	t.Run("page too large", func(t *testing.T) {
		suite.TestRejectsConfig(sourceWith(newFakeLister()), bucketConfig(5000))
	})

	t.Run("unreachable bucket", func(t *testing.T) {
		lister := newFakeLister()
		lister.err = errors.New("AccessDenied")
		src := sourceWith(lister)
		err := src.Connect(context.Background(), bucketConfig(10))
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConnection))
		assert.NoError(t, src.Disconnect(context.Background()))
	})
}
