package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector("metrics-test-source", "metrics-test-sink")

	c.Connected()
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveConnections.WithLabelValues("metrics-test-source")))

	c.ObserveFetch(time.Millisecond, 0, false)
	c.ObserveFetch(time.Millisecond, 3, false)
	c.ObserveFetch(time.Millisecond, 0, true)
	c.ObserveWrite(time.Millisecond, 3)
	c.ObserveRun("succeeded", time.Second)
	c.Disconnected()

	assert.Equal(t, 3.0, testutil.ToFloat64(PagesTotal.WithLabelValues("metrics-test-source")))
	assert.Equal(t, 1.0, testutil.ToFloat64(EmptyPagesTotal.WithLabelValues("metrics-test-source")))
	assert.Equal(t, 3.0, testutil.ToFloat64(RecordsTotal.WithLabelValues("metrics-test-source")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RunsTotal.WithLabelValues("metrics-test-source", "succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ActiveConnections.WithLabelValues("metrics-test-source")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("fetch")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "fetch", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
