package discard

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the counting discard sink
	_ = registry.RegisterSink("discard", Factory)
}
