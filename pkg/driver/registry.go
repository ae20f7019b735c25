// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package driver

import (
	"fmt"
	"sync"
)

// Factory lazily constructs a Driver the first time its name is
// requested. Construction happens at most once per process per name.
type Factory func() (Driver, error)

// Registry maps backend names to lazily constructed, singleton driver
// instances. Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	instances  map[string]Driver
	defaultName string
}

// NewRegistry creates an empty registry with defaultName as the backend
// selected when callers don't specify one explicitly.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		factories:   make(map[string]Factory),
		instances:   make(map[string]Driver),
		defaultName: defaultName,
	}
}

// Register adds a factory for name. Registering the same name twice
// replaces the factory; it does not affect an already-constructed
// instance.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns the driver for name, constructing it on first use.
// Construction is idempotent: concurrent callers requesting the same
// unconstructed name block on the same construction rather than racing.
func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	if d, ok := r.instances[name]; ok {
		r.mu.RUnlock()
		return d, nil
	}
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock in case another goroutine
	// constructed it while we waited.
	if d, ok := r.instances[name]; ok {
		return d, nil
	}

	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("construct backend %q: %w", name, err)
	}
	r.instances[name] = d
	return d, nil
}

// Default returns the driver for the registry's configured default
// backend name.
func (r *Registry) Default() (Driver, error) {
	return r.Get(r.defaultName)
}

// DefaultName returns the configured default backend name.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// List returns a Capability for every registered backend name,
// constructing each one if not already constructed.
func (r *Registry) List() ([]Capability, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()

	caps := make([]Capability, 0, len(names))
	for _, name := range names {
		d, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		caps = append(caps, d.Capabilities())
	}
	return caps, nil
}

// Close closes every constructed driver instance, collecting the first
// error encountered (if any) but attempting to close all of them.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, d := range r.instances {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close backend %q: %w", name, err)
		}
	}
	return firstErr
}
