package model

import (
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// Registry holds the models defined on one connector, keyed by lower-cased
// model name
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Define derives and stores the model for def, replacing an earlier
// definition with the same name
func (r *Registry) Define(def *Definition) (*Model, error) {
	m, err := New(def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.models[strings.ToLower(def.Name)] = m
	r.mu.Unlock()

	return m, nil
}

// Get returns the model registered under name, ignoring case
func (r *Registry) Get(name string) (*Model, error) {
	r.mu.RLock()
	m, ok := r.models[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "model %s is not defined", name)
	}
	return m, nil
}

// Names returns the registered model keys in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for k := range r.models {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
