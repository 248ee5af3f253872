package bigquery

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the BigQuery query source
	_ = registry.RegisterSource("bigquery", New)
}
