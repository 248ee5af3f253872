package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/nebula-extract/internal/pipeline"
	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/json"
	"github.com/ajitpratap0/nebula-extract/pkg/logger"
	"github.com/ajitpratap0/nebula-extract/pkg/observability"
)

type runOptions struct {
	paths    []string
	dryRun   bool
	parallel int
}

// runResult is the line printed on stdout for every job.
type runResult struct {
	JobID        string `json:"job_id"`
	RunID        string `json:"run_id,omitempty"`
	Status       string `json:"status"`
	Processed    int64  `json:"processed"`
	Pages        int    `json:"pages"`
	Duration     string `json:"duration"`
	SuccessCount int64  `json:"success_count"`
	FailureCount int64  `json:"failure_count"`
	Error        string `json:"error,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	PersistError string `json:"persist_error,omitempty"`
}

func newRunCmd(connectors pipeline.Connectors, v *viper.Viper) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run extraction jobs",
		Long: `Run one or more extraction jobs described by YAML job files. Jobs run
concurrently; the command fails if any job fails.

Example:
  nebula-extract run -c orders.yaml -c events.yaml --parallel 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(cmd.Context(), cmd.OutOrStdout(), connectors, v, opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.paths, "config", "c", nil, "Path to a job file (repeatable, required)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Fetch every page but discard the records instead of writing them")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "Maximum jobs running at once; zero runs all of them together")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runJobs(ctx context.Context, stdout io.Writer, connectors pipeline.Connectors, v *viper.Viper, opts *runOptions) error {
	jobs := make([]*config.JobConfig, 0, len(opts.paths))
	for _, path := range opts.paths {
		job, err := config.LoadJob(path)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := v.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := logger.Get().With(zap.String("component", "nebula-cli"))

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "nebula-extract",
		ServiceVersion: version,
		SamplingRate:   1,
		Exporter:       v.GetString("trace"),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if addr := v.GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	orch := pipeline.NewOrchestrator(log, pipeline.WithTracer(observability.Tracer()))
	runner := pipeline.NewJobRunner(orch, connectors, log)
	runner.DryRun = opts.dryRun

	results := make([]runResult, len(jobs))
	var g errgroup.Group
	if opts.parallel > 0 {
		g.SetLimit(opts.parallel)
	}
	for i, job := range jobs {
		g.Go(func() error {
			out, err := runner.RunJob(ctx, job)
			if err != nil {
				log.Error("job setup failed", zap.String("job_id", job.JobID), zap.Error(err))
				out = pipeline.Failed(job.JobID, 0, err)
			} else if out.Succeeded() {
				log.Info("job finished", out.Fields()...)
			} else {
				log.Error("job failed", out.Fields()...)
			}
			results[i] = newRunResult(out)
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(stdout)
	failed := 0
	for _, res := range results {
		if res.Status != string(pipeline.StatusSucceeded) {
			failed++
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(results))
	}
	return nil
}

func newRunResult(out pipeline.Outcome) runResult {
	res := runResult{
		JobID:        out.JobID,
		RunID:        out.RunID,
		Status:       string(out.Status),
		Processed:    out.Processed,
		Pages:        out.Pages,
		Duration:     out.Duration.String(),
		SuccessCount: out.State.SuccessCount,
		FailureCount: out.State.FailureCount,
		ErrorType:    string(out.ErrorType()),
	}
	if out.Cause != nil {
		res.Error = out.Cause.Error()
	}
	if out.PersistErr != nil {
		res.PersistError = out.PersistErr.Error()
	}
	return res
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}
