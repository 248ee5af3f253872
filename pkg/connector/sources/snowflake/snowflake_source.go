// Package snowflake provides a single-shot Snowflake query source.
package snowflake

import (
	"context"
	"database/sql"

	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sources/sqlutil"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// SnowflakeSource returns the whole result of a query as one page.
type SnowflakeSource struct {
	*base.BaseAdapter

	db    *sql.DB
	query string
}

// NewSnowflakeSource creates an unconnected Snowflake source.
func NewSnowflakeSource() *SnowflakeSource {
	return &SnowflakeSource{
		BaseAdapter: base.NewBaseAdapter("snowflake", core.FamilySingleShot, "2.0.0"),
	}
}

// New adapts NewSnowflakeSource to the registry's factory signature.
func New() core.Adapter { return NewSnowflakeSource() }

// Connect validates cfg, then opens and pings a single-connection pool.
func (s *SnowflakeSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	if err := s.Begin(cfg, "query", "credentials.dsn|options.account"); err != nil {
		return err
	}

	dsn, err := DSN(cfg)
	if err != nil {
		return err
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to open Snowflake")
	}
	db.SetMaxOpenConns(1)
	s.OnRelease(func(context.Context) error { return db.Close() })

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to connect to Snowflake")
	}

	s.db = db
	s.query = sqlutil.TrimQuery(cfg.Query)

	s.GetLogger().Info("Connected to Snowflake",
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Option("warehouse", "")))
	return s.MarkConnected()
}

// FetchPage runs the query and returns every row with an exhausted cursor.
func (s *SnowflakeSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(reqCtx, s.query)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to execute query")
	}
	records, err := sqlutil.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	return base.SingleShotPage(records), nil
}

// Disconnect closes the pool.
func (s *SnowflakeSource) Disconnect(ctx context.Context) error {
	return s.Release(ctx)
}

// DSN returns the DSN of cfg, checked by the driver's parser, or formats one
// from the account, warehouse, role, database and credentials.
func DSN(cfg *config.SourceConfig) (string, error) {
	if cfg.Credentials.DSN != "" {
		if _, err := gosnowflake.ParseDSN(cfg.Credentials.DSN); err != nil {
			return "", nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to parse Snowflake DSN")
		}
		return cfg.Credentials.DSN, nil
	}

	sf := &gosnowflake.Config{
		Account:        cfg.Option("account", ""),
		User:           cfg.Credentials.Username,
		Password:       cfg.Credentials.Password,
		Token:          cfg.Credentials.Token,
		Database:       cfg.Database,
		Schema:         cfg.Option("schema", ""),
		Warehouse:      cfg.Option("warehouse", ""),
		Role:           cfg.Option("role", ""),
		Application:    "nebula-extract",
		LoginTimeout:   cfg.Timeouts.Connect,
		RequestTimeout: cfg.Timeouts.Request,
	}
	if sf.Token != "" {
		sf.Authenticator = gosnowflake.AuthTypeOAuth
	}
	dsn, err := gosnowflake.DSN(sf)
	if err != nil {
		return "", nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to build Snowflake DSN")
	}
	return dsn, nil
}
