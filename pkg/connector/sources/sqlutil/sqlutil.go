// Package sqlutil holds the query wrapping and row scanning shared by the
// database/sql backed source adapters.
package sqlutil

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// TrimQuery removes surrounding whitespace and trailing semicolons so the
// query can be nested as a derived table.
func TrimQuery(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), "; \t\n")
}

// Subquery nests query as a derived table named nebula_page.
func Subquery(query string) string {
	return "SELECT * FROM (" + TrimQuery(query) + ") AS nebula_page"
}

// orderByPattern accepts a comma-separated list of optionally bracketed or
// dotted column names, each optionally followed by ASC or DESC.
var orderByPattern = regexp.MustCompile(`(?i)^\s*[\w\[\]\.]+(\s+(asc|desc))?(\s*,\s*[\w\[\]\.]+(\s+(asc|desc))?)*\s*$`)

// ValidOrderBy reports whether orderBy is a plain column list that is safe
// to splice into a query.
func ValidOrderBy(orderBy string) bool {
	return orderByPattern.MatchString(orderBy)
}

// OrderBy returns options.order_by of cfg. Every page re-runs the query, so
// offset paging needs a total order that holds across executions.
func OrderBy(cfg *config.SourceConfig) (string, error) {
	orderBy := cfg.Option("order_by", "")
	if !ValidOrderBy(orderBy) {
		return "", nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "%s source: invalid order_by %q", cfg.Type, orderBy)
	}
	return strings.TrimSpace(orderBy), nil
}

// ScanRows reads every row into a record keyed by column name and closes rows.
func ScanRows(rows *sql.Rows) ([]models.Record, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to get columns")
	}

	var records []models.Record
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "failed to scan row")
		}

		record := models.NewRecord(len(cols))
		for i, col := range cols {
			record[col] = Normalize(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "error iterating rows")
	}
	return records, nil
}

// Normalize converts driver values into JSON-friendly ones: text returned as
// bytes becomes a string and times are rendered in UTC RFC 3339.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
