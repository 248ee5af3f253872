// Package postgresql provides an offset-paginated PostgreSQL source.
package postgresql

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/base"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/sources/sqlutil"
	"github.com/ajitpratap0/nebula-extract/pkg/cursor"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

const defaultPort = 5432

// PostgreSQLSource pages a query with LIMIT/OFFSET over a single connection.
// Rows are ordered by options.order_by so every page sees the same order.
type PostgreSQLSource struct {
	*base.BaseAdapter

	conn    *pgx.Conn
	query   string
	orderBy string
	limit   int
}

// NewPostgreSQLSource creates an unconnected PostgreSQL source.
func NewPostgreSQLSource() *PostgreSQLSource {
	return &PostgreSQLSource{
		BaseAdapter: base.NewBaseAdapter("postgresql", core.FamilyOffset, "2.0.0"),
	}
}

// New adapts NewPostgreSQLSource to the registry's factory signature.
func New() core.Adapter { return NewPostgreSQLSource() }

// Connect validates cfg, then opens and pings the connection.
func (s *PostgreSQLSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
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

	connConfig, err := pgx.ParseConfig(ConnString(cfg))
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to parse connection string")
	}
	connConfig.ConnectTimeout = cfg.Timeouts.Connect

	connectCtx, cancel := s.ConnectContext(ctx)
	defer cancel()

	conn, err := pgx.ConnectConfig(connectCtx, connConfig)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to connect to PostgreSQL")
	}
	s.OnRelease(conn.Close)

	if err := conn.Ping(connectCtx); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to validate connection")
	}

	s.conn = conn
	s.query = cfg.Query
	s.orderBy = orderBy
	s.limit = cfg.PageLimit()

	s.GetLogger().Info("Connected to PostgreSQL",
		zap.String("host", connConfig.Host),
		zap.String("database", connConfig.Database),
		zap.String("order_by", s.orderBy),
		zap.String("server_version", conn.PgConn().ParameterStatus("server_version")),
		zap.Int("page_size", s.limit))
	return s.MarkConnected()
}

// FetchPage reads the page at the cursor's offset.
func (s *PostgreSQLSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
	if err := s.Guard(ctx, c); err != nil {
		return nil, err
	}
	offset, _ := c.Offset()

	reqCtx, cancel := s.RequestContext(ctx)
	defer cancel()

	rows, err := s.conn.Query(reqCtx, PageQuery(s.query, s.orderBy), s.limit, offset)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to execute query").
			WithDetail("offset", offset)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	records := make([]models.Record, 0, s.limit)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to scan row")
		}
		record := models.NewRecord(len(fields))
		for i, fd := range fields {
			record[fd.Name] = normalize(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "error iterating rows").
			WithDetail("offset", offset)
	}

	return base.OffsetPage(records, offset, s.limit), nil
}

// Disconnect closes the connection.
func (s *PostgreSQLSource) Disconnect(ctx context.Context) error {
	return s.Release(ctx)
}

// PageQuery orders the nested query by orderBy and adds positional LIMIT ($1)
// and OFFSET ($2) parameters.
func PageQuery(query, orderBy string) string {
	return sqlutil.Subquery(query) + " ORDER BY " + orderBy + " LIMIT $1 OFFSET $2"
}

// ConnString returns the DSN of cfg, or builds a postgres:// URL from its
// host, port, database and credentials. options.sslmode defaults to prefer.
func ConnString(cfg *config.SourceConfig) string {
	if cfg.Credentials.DSN != "" {
		return cfg.Credentials.DSN
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%s", cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Credentials.Username != "" {
		if cfg.Credentials.Password != "" {
			u.User = url.UserPassword(cfg.Credentials.Username, cfg.Credentials.Password)
		} else {
			u.User = url.User(cfg.Credentials.Username)
		}
	}
	q := url.Values{}
	q.Set("sslmode", cfg.Option("sslmode", "prefer"))
	if app := cfg.Option("application_name", "nebula-extract"); app != "" {
		q.Set("application_name", app)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func normalize(v interface{}) interface{} {
	if b, ok := v.([16]byte); ok {
		return uuid.UUID(b).String()
	}
	return sqlutil.Normalize(v)
}
