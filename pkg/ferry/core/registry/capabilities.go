package registry

import "github.com/tigerroll/ferry/pkg/ferry/core/ports"

// Capabilities holds the transfer/cleanup functions and the count probes a
// worker or reconciler may reference by key.
type Capabilities struct {
	Functions *Registry[ports.Capability]
	Probes    *Registry[ports.CountProbe]
}

// NewCapabilities creates empty function and probe registries.
func NewCapabilities() *Capabilities {
	return &Capabilities{
		Functions: New[ports.Capability](),
		Probes:    New[ports.CountProbe](),
	}
}

// CheckFunctions resolves every key and returns the first failure.
func (c *Capabilities) CheckFunctions(keys ...string) error {
	for _, key := range keys {
		if _, err := c.Functions.Resolve(key); err != nil {
			return err
		}
	}
	return nil
}
