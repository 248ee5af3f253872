package gcs

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sdk"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

type fakeLister struct {
	names  []string
	err    error
	closed int
	tokens []string
}

func (f *fakeLister) ListPage(_ context.Context, _ string, q *storage.Query, pageSize int, token string) ([]*storage.ObjectAttrs, string, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, "", f.err
	}

	var matching []string
	for _, n := range f.names {
		if strings.HasPrefix(n, q.Prefix) && n >= q.StartOffset && (q.EndOffset == "" || n < q.EndOffset) {
			matching = append(matching, n)
		}
	}
	sort.Strings(matching)

	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := start + pageSize
	if end > len(matching) {
		end = len(matching)
	}

	var out []*storage.ObjectAttrs
	for _, n := range matching[start:end] {
		out = append(out, &storage.ObjectAttrs{
			Name:    n,
			Size:    int64(len(n)),
			Updated: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		})
	}
	next := ""
	if end < len(matching) {
		next = strconv.Itoa(end)
	}
	return out, next, nil
}

func (f *fakeLister) Close() error {
	f.closed++
	return nil
}

func sourceWith(l *fakeLister) *GCSSource {
	return NewGCSSource().WithListerFactory(func(context.Context, *config.SourceConfig) (Lister, error) {
		return l, nil
	})
}

func bucketConfig(pageSize int) *config.SourceConfig {
	cfg := config.NewSourceConfig("gcs")
	cfg.Resource = "exports"
	cfg.Prefix = "daily/"
	cfg.PageSize = pageSize
	return cfg
}

func TestGCSSourceContract(t *testing.T) {
	lister := &fakeLister{names: []string{"daily/1", "daily/2", "daily/3", "weekly/1"}}

	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(lister), bucketConfig(2))

	require.Len(t, pages, 2)
	assert.Len(t, pages[0], 2)
	require.Len(t, pages[1], 1)
	assert.Equal(t, "daily/3", pages[1][0]["name"])
	assert.Equal(t, "exports", pages[1][0]["bucket"])
	assert.Equal(t, "2024-05-06T07:08:09Z", pages[1][0]["updated"])
	assert.Equal(t, []string{"", "", "2"}, lister.tokens)
	assert.Equal(t, 1, lister.closed)
}

func TestGCSSourceKeyBounds(t *testing.T) {
	lister := &fakeLister{names: []string{"daily/1", "daily/2", "daily/3", "daily/4"}}
	cfg := bucketConfig(10)
	cfg.StartKey = "daily/2"
	cfg.StopKey = "daily/4"

	pages := sdk.NewTestSuite(t).TestAdapter(sourceWith(lister), cfg)

	require.Len(t, pages, 1)
	require.Len(t, pages[0], 2)
	assert.Equal(t, "daily/2", pages[0][0]["name"])
	assert.Equal(t, "daily/3", pages[0][1]["name"])
}

func TestGCSSourceErrors(t *testing.T) {
	t.Run("missing bucket", func(t *testing.T) {
		sdk.NewTestSuite(t).TestRejectsConfig(sourceWith(&fakeLister{}), config.NewSourceConfig("gcs"))
	})

	t.Run("unreachable bucket", func(t *testing.T) {
		lister := &fakeLister{err: errors.New("storage: bucket doesn't exist")}
		src := sourceWith(lister)
		err := src.Connect(context.Background(), bucketConfig(10))
		assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConnection))
		assert.NoError(t, src.Disconnect(context.Background()))
		assert.Equal(t, 1, lister.closed)
	})
}
