package file

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the local JSONL file sink
	_ = registry.RegisterSink("file", Factory)
}
