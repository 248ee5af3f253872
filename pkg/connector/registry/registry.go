// Package registry maps source and sink type names to their factories.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-extract/pkg/config"
	"github.com/ajitpratap0/nebula-extract/pkg/connector/core"
	"github.com/ajitpratap0/nebula-extract/pkg/logger"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// SourceFactory creates an unconnected source adapter. The adapter receives
// its configuration on Connect.
type SourceFactory func() core.Adapter

// SinkFactory creates a batch sink from its configuration.
type SinkFactory func(cfg config.SinkConfig) (core.BatchSink, error)

// ConnectorInfo describes a registered connector.
type ConnectorInfo struct {
	Name string `json:"name"`
	// Kind is "source" or "sink"
	Kind string `json:"kind"`
	// Family is the pagination family of a source, empty for sinks
	Family core.Family `json:"family,omitempty"`
}

// Registry manages connector registration and instantiation
type Registry struct {
	sources map[string]SourceFactory
	sinks   map[string]SinkFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		sinks:   make(map[string]SinkFactory),
		logger:  logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterSource registers a source adapter factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, fmt.Sprintf("source %s already registered", name))
	}

	r.sources[name] = factory
	r.logger.Debug("source registered", zap.String("name", name))
	return nil
}

// RegisterSink registers a sink factory
func (r *Registry) RegisterSink(name string, factory SinkFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; exists {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, fmt.Sprintf("sink %s already registered", name))
	}

	r.sinks[name] = factory
	r.logger.Debug("sink registered", zap.String("name", name))
	return nil
}

// CreateSource creates a source adapter instance
func (r *Registry) CreateSource(name string) (core.Adapter, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, fmt.Sprintf("source %s not found", name)).
			WithDetail("available", r.ListSources())
	}
	return factory(), nil
}

// CreateSink creates a sink instance from cfg
func (r *Registry) CreateSink(cfg config.SinkConfig) (core.BatchSink, error) {
	r.mu.RLock()
	factory, exists := r.sinks[cfg.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, fmt.Sprintf("sink %s not found", cfg.Type)).
			WithDetail("available", r.ListSinks())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sink, err := factory(cfg)
	if err != nil {
		errType := nebulaerrors.GetType(err)
		if errType == "" {
			errType = nebulaerrors.ErrorTypeConfig
		}
		return nil, nebulaerrors.Wrap(err, errType, fmt.Sprintf("failed to create sink %s", cfg.Type))
	}
	return sink, nil
}

// ListSources returns the registered source names in order
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

// ListSinks returns the registered sink names in order
func (r *Registry) ListSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sinks)
}

// HasSource checks if a source is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// HasSink checks if a sink is registered
func (r *Registry) HasSink(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sinks[name]
	return exists
}

// Catalog describes every registered connector, sources first.
func (r *Registry) Catalog() []ConnectorInfo {
	var infos []ConnectorInfo
	for _, name := range r.ListSources() {
		r.mu.RLock()
		factory := r.sources[name]
		r.mu.RUnlock()
		infos = append(infos, ConnectorInfo{Name: name, Kind: "source", Family: factory().Family()})
	}
	for _, name := range r.ListSinks() {
		infos = append(infos, ConnectorInfo{Name: name, Kind: "sink"})
	}
	return infos
}

// Clear removes all registered connectors (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = make(map[string]SourceFactory)
	r.sinks = make(map[string]SinkFactory)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Global registry functions

// RegisterSource registers a source in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterSink registers a sink in the global registry
func RegisterSink(name string, factory SinkFactory) error {
	return globalRegistry.RegisterSink(name, factory)
}

// CreateSource creates a source adapter from the global registry
func CreateSource(name string) (core.Adapter, error) {
	return globalRegistry.CreateSource(name)
}

// CreateSink creates a sink from the global registry
func CreateSink(cfg config.SinkConfig) (core.BatchSink, error) {
	return globalRegistry.CreateSink(cfg)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListSinks returns registered sinks from the global registry
func ListSinks() []string {
	return globalRegistry.ListSinks()
}

// GetRegistry returns the global registry instance.
// This is the primary way to access the connector registry.
func GetRegistry() *Registry {
	return globalRegistry
}
