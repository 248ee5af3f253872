// Package sqlserver provides an OFFSET/FETCH paginated SQL Server source.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	mssql "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sources/sqlutil"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const defaultPort = 1433

// SQLServerSource pages a query with OFFSET ... FETCH NEXT. SQL Server needs
// an ORDER BY for OFFSET, so options.order_by is required.
type SQLServerSource struct {
	*base.BaseAdapter

	db      *sql.DB
	query   string
	orderBy string
	limit   int
}

// NewSQLServerSource creates an unconnected SQL Server source.
func NewSQLServerSource() *SQLServerSource {
	return &SQLServerSource{
		BaseAdapter: base.NewBaseAdapter("sqlserver", core.FamilyOffset, "2.0.0"),
	}
}

// New adapts NewSQLServerSource to the registry's factory signature.
func New() core.Adapter { return NewSQLServerSource() }

// Connect validates cfg, then opens and pings a single-connection pool.
func (s *SQLServerSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	if err := s.Begin(cfg, "query", "options.order_by", "credentials.dsn|host"); err != nil {
		return err
	}
	orderBy, err := sqlutil.OrderBy(cfg)
	if err != nil {
		return err
	}

	connector, err := mssql.NewConnector(ConnString(cfg))
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to parse SQL Server connection string")
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	s.OnRelease(func(context.Context) error { return db.Close() })

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to connect to SQL Server")
	}

	s.db = db
	s.query = cfg.Query
	s.orderBy = orderBy
	s.limit = cfg.PageLimit()

	s.GetLogger().Info("Connected to SQL Server",
		zap.String("order_by", s.orderBy),
		zap.Int("page_size", s.limit))
	return s.MarkConnected()
}

// FetchPage reads the page at the cursor's offset.
func (s *SQLServerSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}
	offset, _ := c.Offset()

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(reqCtx, PageQuery(s.query, s.orderBy),
		sql.Named("offset", offset),
		sql.Named("limit", s.limit))
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to execute query").
			WithDetail("offset", offset)
	}
	records, err := sqlutil.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	return base.OffsetPage(records, offset, s.limit), nil
}

// Disconnect closes the pool.
func (s *SQLServerSource) Disconnect(ctx context.Context) error {
	return s.Release(ctx)
}

// PageQuery orders the nested query by orderBy and selects @limit rows from @offset.
func PageQuery(query, orderBy string) string {
	return fmt.Sprintf("%s ORDER BY %s OFFSET @offset ROWS FETCH NEXT @limit ROWS ONLY",
		sqlutil.Subquery(query), orderBy)
}

// ConnString returns the DSN of cfg, or builds a sqlserver:// URL from its
// host, port, database and credentials.
func ConnString(cfg *config.SourceConfig) string {
	if cfg.Credentials.DSN != "" {
		return cfg.Credentials.DSN
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	u := url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
	}
	if cfg.Credentials.Username != "" {
		u.User = url.UserPassword(cfg.Credentials.Username, cfg.Credentials.Password)
	}
	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	if enc := cfg.Option("encrypt", ""); enc != "" {
		q.Set("encrypt", enc)
	}
	q.Set("app name", "nebula-extract")
	u.RawQuery = q.Encode()
	return u.String()
}
