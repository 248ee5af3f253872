package sqlserver

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the SQL Server source
	_ = registry.RegisterSource("sqlserver", New)
}
