package postgresql

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the PostgreSQL source
	_ = registry.RegisterSource("postgresql", New)
}
