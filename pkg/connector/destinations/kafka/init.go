package kafka

import (
	"github.com/ajitpratap0/nebula-extract/pkg/connector/registry"
)

func init() {
	// Register the Kafka producer sink
	_ = registry.RegisterSink("kafka", Factory)
}
