// health.go - Dependency probes for the nullifier daemon
package main

import (
	"context"
	"errors"
	"time"

	"privcore/internal/registry"
)

// Pinger is satisfied by stores with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// storeProbe reports connectivity of the registry store. File-backed stores
// have no connection to lose and always pass.
func storeProbe(store registry.Store) func() error {
	p, ok := store.(Pinger)
	if !ok {
		return func() error { return nil }
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}

// filterProbe reports whether the registry's Bloom filter tier is in
// service. A degraded filter is not fatal but is worth surfacing.
func filterProbe(reg *registry.Registry) func() error {
	return func() error {
		if !reg.FilterHealthy() {
			return errors.New("bloom filter degraded, lookups fall through to the store")
		}
		return nil
	}
}
