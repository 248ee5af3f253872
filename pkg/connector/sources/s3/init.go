package s3

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the S3 listing source
	_ = registry.RegisterSource("s3", New)
}
