package mysql

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the MySQL source
	_ = registry.RegisterSource("mysql", New)
}
