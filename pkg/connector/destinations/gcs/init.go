package gcs

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the GCS object sink
	_ = registry.RegisterSink("gcs", Factory)
}
