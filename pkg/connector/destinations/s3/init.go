package s3

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the S3 object sink
	_ = registry.RegisterSink("s3", Factory)
}
