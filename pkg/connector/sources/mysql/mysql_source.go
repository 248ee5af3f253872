// Package mysql provides an offset-paginated MySQL source.
package mysql

import (
	"context"
	"database/sql"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sources/sqlutil"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const defaultPort = 3306

// MySQLSource pages a query with LIMIT/OFFSET. MySQL drops an ORDER BY
// inside a derived table, so the order comes from options.order_by and is
// applied to the outer query.
type MySQLSource struct {
	*base.BaseAdapter

	db      *sql.DB
	query   string
	orderBy string
	limit   int
}

// NewMySQLSource creates an unconnected MySQL source.
func NewMySQLSource() *MySQLSource {
	return &MySQLSource{
		BaseAdapter: base.NewBaseAdapter("mysql", core.FamilyOffset, "2.0.0"),
	}
}

// New adapts NewMySQLSource to the registry's factory signature.
func New() core.Adapter { return NewMySQLSource() }

// Connect validates cfg, then opens and pings a single-connection pool.
func (s *MySQLSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
	required := []string{"query", "options.order_by", "credentials.dsn|host"}
	if cfg != nil && cfg.Credentials.DSN == "" {
		required = append(required, "database")
	}
	if err := s.Begin(cfg, required...); err != nil {
		return err
	}
	orderBy, err := sqlutil.OrderBy(cfg)
	if err != nil {
		return err
	}

	dsn, err := DSN(cfg)
	if err != nil {
		return err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to open MySQL")
	}
	// Pages are read one at a time on a single session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.OnRelease(func(context.Context) error { return db.Close() })

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to connect to MySQL")
	}

	s.db = db
	s.query = cfg.Query
	s.orderBy = orderBy
	s.limit = cfg.PageLimit()

	s.GetLogger().Info("Connected to MySQL",
		zap.String("order_by", s.orderBy),
		zap.Int("page_size", s.limit))
	return s.MarkConnected()
}

// FetchPage reads the page at the cursor's offset.
func (s *MySQLSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}
	offset, _ := c.Offset()

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(reqCtx, PageQuery(s.query, s.orderBy), s.limit, offset)
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
func (s *MySQLSource) Disconnect(ctx context.Context) error {
	return s.Release(ctx)
}

// PageQuery orders the nested query by orderBy and adds LIMIT and OFFSET
// placeholders.
func PageQuery(query, orderBy string) string {
	return sqlutil.Subquery(query) + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
}

// DSN returns the DSN of cfg, checked by the driver's parser, or formats one
// from its host, port, database and credentials.
func DSN(cfg *config.SourceConfig) (string, error) {
	if cfg.Credentials.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.Credentials.DSN)
		if err != nil {
			return "", nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to parse MySQL DSN")
		}
		parsed.ParseTime = true
		return parsed.FormatDSN(), nil
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Credentials.Username
	mc.Passwd = cfg.Credentials.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = cfg.Timeouts.Connect
	mc.ReadTimeout = cfg.Timeouts.Request
	if tls := cfg.Option("tls", ""); tls != "" {
		mc.TLSConfig = tls
	}
	return mc.FormatDSN(), nil
}
