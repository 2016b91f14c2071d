// Package registry maps backend names to the factories that build their
// dialers. Backends register themselves from init(), so importing a backend
// package is enough to make it selectable by name.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/logger"
)

// BackendFactory creates the dialer for a backend from connector
// configuration
type BackendFactory func(cfg *config.ConnectorConfig) (akeraapi.Dialer, error)

// BackendInfo describes a registered backend
type BackendInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Library     string `json:"library"`
}

// Registry manages backend registration and instantiation
type Registry struct {
	backends map[string]BackendFactory
	info     map[string]*BackendInfo
	mu       sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]BackendFactory),
		info:     make(map[string]*BackendInfo),
	}
}

func (r *Registry) logger() *zap.Logger {
	return logger.Get().With(zap.String("component", "backend_registry"))
}

// RegisterBackend registers a backend factory
func (r *Registry) RegisterBackend(info BackendInfo, factory BackendFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[info.Name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("backend %s already registered", info.Name))
	}

	r.backends[info.Name] = factory
	r.info[info.Name] = &info
	r.logger().Debug("backend registered", zap.String("name", info.Name))
	return nil
}

// CreateDialer builds the dialer of the named backend
func (r *Registry) CreateDialer(name string, cfg *config.ConnectorConfig) (akeraapi.Dialer, error) {
	r.mu.RLock()
	factory, exists := r.backends[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("backend %s not found", name)).
			WithDetail("available", r.ListBackends())
	}

	dialer, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create backend %s", name))
	}
	return dialer, nil
}

// ListBackends returns the registered backend names, sorted
func (r *Registry) ListBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the description of a backend
func (r *Registry) Info(name string) (*BackendInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.info[name]
	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("backend %s not found", name))
	}
	return info, nil
}

// HasBackend checks if a backend is registered
func (r *Registry) HasBackend(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.backends[name]
	return exists
}

// Clear removes all registered backends (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends = make(map[string]BackendFactory)
	r.info = make(map[string]*BackendInfo)
}

// Global registry functions

// RegisterBackend registers a backend in the global registry
func RegisterBackend(info BackendInfo, factory BackendFactory) error {
	return globalRegistry.RegisterBackend(info, factory)
}

// MustRegisterBackend registers a backend and panics on duplicates. Intended
// for init functions.
func MustRegisterBackend(info BackendInfo, factory BackendFactory) {
	if err := RegisterBackend(info, factory); err != nil {
		panic(err)
	}
}

// CreateDialer builds a dialer from the global registry
func CreateDialer(name string, cfg *config.ConnectorConfig) (akeraapi.Dialer, error) {
	return globalRegistry.CreateDialer(name, cfg)
}

// ListBackends returns registered backends from the global registry
func ListBackends() []string {
	return globalRegistry.ListBackends()
}

// Info describes a backend from the global registry
func Info(name string) (*BackendInfo, error) {
	return globalRegistry.Info(name)
}

// HasBackend checks if a backend is registered in the global registry
func HasBackend(name string) bool {
	return globalRegistry.HasBackend(name)
}

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}
