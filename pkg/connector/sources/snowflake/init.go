package snowflake

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the Snowflake query source
	_ = registry.RegisterSource("snowflake", New)
}
