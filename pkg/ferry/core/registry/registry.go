// Package registry maps capability keys of the form "namespace.path.symbol" to
// values. Keys are validated and duplicates rejected when registered, so a bad
// reference surfaces before any work starts.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/tigerroll/ferry/pkg/ferry/support/util/exception"
)

const module = "registry"

// Registry is a concurrency-safe map of validated keys to values.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// ValidateKey checks that key has at least three non-empty dot-separated segments.
func ValidateKey(key string) error {
	segments := strings.Split(key, ".")
	if len(segments) < 3 {
		return exception.NewFerryErrorf(exception.ValidationError, module, "capability key %q must have the form namespace.path.symbol", key)
	}
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return exception.NewFerryErrorf(exception.ValidationError, module, "capability key %q has an empty segment", key)
		}
	}
	return nil
}

// Register adds value under key. Invalid and duplicate keys are ValidationErrors.
func (r *Registry[T]) Register(key string, value T) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return exception.NewFerryErrorf(exception.ValidationError, module, "capability %q is already registered", key)
	}
	r.entries[key] = value
	return nil
}

// MustRegister is Register for package initialisation; it panics on error.
func (r *Registry[T]) MustRegister(key string, value T) {
	if err := r.Register(key, value); err != nil {
		panic(err)
	}
}

// Resolve returns the value registered under key.
func (r *Registry[T]) Resolve(key string) (T, error) {
	var zero T
	if err := ValidateKey(key); err != nil {
		return zero, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.entries[key]
	if !ok {
		return zero, exception.NewFerryErrorf(exception.ValidationError, module, "unknown capability %q", key)
	}
	return value, nil
}

// Has reports whether key is registered.
func (r *Registry[T]) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
