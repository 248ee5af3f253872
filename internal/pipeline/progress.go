package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// ProgressReporter logs the progress of one run at most once per interval.
type ProgressReporter struct {
	logger   *zap.Logger
	now      func() time.Time
	interval time.Duration

	total     int64
	processed int64
	pages     int
	startTime time.Time
	lastLog   time.Time
}

// NewProgressReporter creates a reporter that logs through logger.
func NewProgressReporter(logger *zap.Logger, now func() time.Time, interval time.Duration) *ProgressReporter {
	start := now()
	return &ProgressReporter{
		logger:    logger,
		now:       now,
		interval:  interval,
		startTime: start,
		lastLog:   start,
	}
}

// SetTotal records the expected number of records, if known.
func (pr *ProgressReporter) SetTotal(total int64) {
	pr.total = total
}

// Page records one fetched page and logs if the interval has elapsed.
func (pr *ProgressReporter) Page(records int) {
	pr.pages++
	pr.processed += int64(records)

	now := pr.now()
	if now.Sub(pr.lastLog) < pr.interval {
		return
	}
	pr.lastLog = now
	pr.logger.Info("extraction progress", pr.fields(now)...)
}

// Processed returns the running record count.
func (pr *ProgressReporter) Processed() int64 { return pr.processed }

// Pages returns the running page count.
func (pr *ProgressReporter) Pages() int { return pr.pages }

func (pr *ProgressReporter) fields(now time.Time) []zap.Field {
	elapsed := now.Sub(pr.startTime)
	fields := []zap.Field{
		zap.Int64("processed", pr.processed),
		zap.Int("pages", pr.pages),
		zap.Duration("elapsed", elapsed),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		fields = append(fields, zap.Float64("records_per_sec", float64(pr.processed)/secs))
	}
	if pr.total > 0 {
		fields = append(fields,
			zap.Int64("total", pr.total),
			zap.Float64("percent", 100*float64(pr.processed)/float64(pr.total)))
	}
	return fields
}
