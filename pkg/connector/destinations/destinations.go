// Package destinations registers every batch sink with the connector registry
package destinations

import (
	// Import all sinks to trigger init() registration
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/discard"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/file"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/gcs"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/kafka"
	_ "github.com/ajitpratap0/nebula-extract/pkg/connector/destinations/s3"
)
