package mongodb

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the MongoDB key-range source
	_ = registry.RegisterSource("mongodb", New)
}
