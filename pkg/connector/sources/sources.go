// Package sources registers every source adapter with the connector registry
package sources

import (
	// Import all source adapters to trigger init() registration
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/bigquery"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/gcs"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/kafka"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/mongodb"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/mysql"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/postgresql"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/s3"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/snowflake"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/sources/sqlserver"
)
