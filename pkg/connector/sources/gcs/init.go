package gcs

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the GCS listing source
	_ = registry.RegisterSource("gcs", New)
}
