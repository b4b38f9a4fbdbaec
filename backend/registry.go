// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"slices"
	"sync"

	"github.com/gogpu/cmdqueue"
)

// DriverFactory creates a new, uninitialized driver instance.
type DriverFactory func() Driver

// registry holds registered drivers.
var (
	registryMu sync.RWMutex
	drivers    = make(map[string]DriverFactory)
	// Priority order for driver selection (first that initializes wins).
	driverPriority = []string{BackendNative, BackendSim}
)

// Register registers a driver factory with the given name.
// This is typically called from init() functions in driver packages.
// If a driver with the same name is already registered, it will be replaced.
func Register(name string, factory DriverFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	drivers[name] = factory
}

// Unregister removes a driver from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(drivers, name)
}

// Available returns the registered driver names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a driver with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := drivers[name]
	return ok
}

// Get returns a new driver instance by name.
// Returns nil if the driver is not registered.
func Get(name string) Driver {
	registryMu.RLock()
	factory, ok := drivers[name]
	registryMu.RUnlock()

	if !ok {
		return nil
	}
	return factory()
}

// Open returns an initialized driver by name.
func Open(name string) (Driver, error) {
	d := Get(name)
	if d == nil {
		return nil, ErrBackendNotAvailable
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

// InitDefault returns the first driver, in priority order, that
// initializes successfully. Drivers outside the priority list are tried
// last, by name.
func InitDefault() (Driver, error) {
	names := candidates()
	if len(names) == 0 {
		return nil, ErrBackendNotAvailable
	}

	var lastErr error
	for _, name := range names {
		d, err := Open(name)
		if err == nil {
			return d, nil
		}
		cmdqueue.Logger().Debug("backend: driver unavailable", "driver", name, "err", err)
		lastErr = err
	}
	return nil, lastErr
}

// DriverStatus reports whether a registered driver initializes on this host.
// Err is nil for usable drivers.
type DriverStatus struct {
	Name string
	Err  error
}

// Statuses initializes every registered driver, in the order InitDefault
// would try them, and closes each one that came up.
func Statuses() []DriverStatus {
	names := candidates()
	out := make([]DriverStatus, 0, len(names))
	for _, name := range names {
		d, err := Open(name)
		if err == nil {
			d.Close()
		}
		out = append(out, DriverStatus{Name: name, Err: err})
	}
	return out
}

// candidates lists registered drivers in selection order.
func candidates() []string {
	registered := Available()

	names := make([]string, 0, len(registered))
	for _, name := range driverPriority {
		if slices.Contains(registered, name) {
			names = append(names, name)
		}
	}
	for _, name := range registered {
		if !slices.Contains(driverPriority, name) {
			names = append(names, name)
		}
	}
	return names
}
