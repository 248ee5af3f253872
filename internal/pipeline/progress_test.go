package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestProgressReporterThrottles(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	pr := NewProgressReporter(zap.New(core), clock, 10*time.Second)
	pr.SetTotal(400)

	pr.Page(100)
	now = now.Add(5 * time.Second)
	pr.Page(100)
	assert.Equal(t, 0, logs.Len())

	now = now.Add(5 * time.Second)
	pr.Page(100)
	a := assert.New(t)
	a.Equal(1, logs.Len())

	entry := logs.All()[0].ContextMap()
	a.Equal(int64(300), entry["processed"])
	a.Equal(int64(3), entry["pages"])
	a.Equal(float64(75), entry["percent"])
	a.Equal(float64(30), entry["records_per_sec"])

	assert.Equal(t, int64(300), pr.Processed())
	assert.Equal(t, 3, pr.Pages())
}
