// Package bigquery provides a single-shot BigQuery query source.
package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
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

// Runner executes queries against BigQuery.
type Runner interface {
	// DryRun validates the query and the credentials without reading data
	DryRun(ctx context.Context, query string) error
	// Rows runs the query and reads the whole result
	Rows(ctx context.Context, query string) ([]map[string]bigquery.Value, error)
	Close() error
}

// RunnerFactory builds the Runner from the source config.
type RunnerFactory func(ctx context.Context, cfg *config.SourceConfig) (Runner, error)

// BigQuerySource returns the whole result of a query as one page.
type BigQuerySource struct {
	*base.BaseAdapter

	newRunner RunnerFactory
	runner    Runner
	query     string
}

// NewBigQuerySource creates an unconnected BigQuery source.
func NewBigQuerySource() *BigQuerySource {
	return &BigQuerySource{
		BaseAdapter: base.NewBaseAdapter("bigquery", core.FamilySingleShot, "2.0.0"),
		newRunner:   newClientRunner,
	}
}

// New adapts NewBigQuerySource to the registry's factory signature.
func New() core.Adapter { return NewBigQuerySource() }

// WithRunnerFactory replaces the BigQuery client, typically with a fake.
func (s *BigQuerySource) WithRunnerFactory(f RunnerFactory) *BigQuerySource {
	s.newRunner = f
	return s
}

// Connect validates cfg, creates the client and dry-runs the query.
func (s *BigQuerySource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	if err := s.Begin(cfg, "project", "query"); err != nil {
		return err
	}

	runner, err := s.newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	s.OnRelease(func(context.Context) error { return runner.Close() })

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()
	if err := runner.DryRun(connectCtx, cfg.Query); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "BigQuery dry run failed").
			WithDetail("project", cfg.Project)
	}

	s.runner = runner
	s.query = cfg.Query

	s.GetLogger().Info("Connected to BigQuery", zap.String("project", cfg.Project))
	return s.MarkConnected()
}

// FetchPage runs the query and returns every row with an exhausted cursor.
func (s *BigQuerySource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	rows, err := s.runner.Rows(reqCtx, s.query)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to run query")
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.Record(normalizeRow(row)))
	}
	return base.SingleShotPage(records), nil
}

// Disconnect closes the client.
func (s *BigQuerySource) Disconnect(ctx context.Context) error {
	s.runner = nil
	return s.Release(ctx)
}

func normalizeRow(row map[string]bigquery.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts BigQuery values into JSON-friendly ones. DATE, TIME and
// DATETIME values render through their String methods.
func normalize(v bigquery.Value) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case *big.Rat:
		return val.FloatString(9)
	case map[string]bigquery.Value:
		return normalizeRow(val)
	case []bigquery.Value:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}

type clientRunner struct {
	client *bigquery.Client
	// location pins query jobs to a region
	location string
}

func newClientRunner(ctx context.Context, cfg *config.SourceConfig) (Runner, error) {
	opts := clients.GoogleOptions{
		CredentialsFile: cfg.Credentials.CredentialsFile,
		Token:           cfg.Credentials.Token,
		Endpoint:        cfg.Endpoint,
	}
	client, err := bigquery.NewClient(ctx, cfg.Project, opts.ClientOptions()...)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to create BigQuery client")
	}
	return &clientRunner{client: client, location: cfg.Option("location", "")}, nil
}

func (r *clientRunner) newQuery(query string) *bigquery.Query {
	q := r.client.Query(query)
	q.Location = r.location
	return q
}

func (r *clientRunner) DryRun(ctx context.Context, query string) error {
	q := r.newQuery(query)
	q.DryRun = true
	_, err := q.Run(ctx)
	return err
}

func (r *clientRunner) Rows(ctx context.Context, query string) ([]map[string]bigquery.Value, error) {
	it, err := r.newQuery(query).Read(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]bigquery.Value, 0, it.TotalRows)
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func (r *clientRunner) Close() error {
	return r.client.Close()
}
