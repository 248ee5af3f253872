package kafka

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the Kafka topic scan source
	_ = registry.RegisterSource("kafka", New)
}
