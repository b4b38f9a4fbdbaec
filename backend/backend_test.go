// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/cmdqueue"
)

// fakeDriver is a test driver for registry testing.
type fakeDriver struct {
	name    string
	initErr error
	inited  bool
	closed  bool
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Init() error {
	if d.initErr != nil {
		return d.initErr
	}
	d.inited = true
	return nil
}

func (d *fakeDriver) Close() { d.closed = true }

func (d *fakeDriver) CommandBuffer() cmdqueue.CommandBuffer { return nil }

// register adds a fake driver for the duration of the test.
func register(t *testing.T, name string, initErr error) {
	t.Helper()
	Register(name, func() Driver {
		return &fakeDriver{name: name, initErr: initErr}
	})
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistryRegisterAndGet(t *testing.T) {
	register(t, "test-driver", nil)

	if !IsRegistered("test-driver") {
		t.Fatal("test-driver should be registered")
	}
	d := Get("test-driver")
	if d == nil {
		t.Fatal("Get(test-driver) returned nil")
	}
	if d.Name() != "test-driver" {
		t.Errorf("Name() = %q, want %q", d.Name(), "test-driver")
	}
	if d2 := Get("test-driver"); d2 == d {
		t.Error("Get should return a new instance per call")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	if d := Get("nonexistent"); d != nil {
		t.Errorf("Get(nonexistent) = %v, want nil", d)
	}
	if _, err := Open("nonexistent"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryAvailableSorted(t *testing.T) {
	register(t, "zz-driver", nil)
	register(t, "aa-driver", nil)

	available := Available()
	if !slices.IsSorted(available) {
		t.Errorf("Available() = %v, not sorted", available)
	}
	if !slices.Contains(available, "aa-driver") || !slices.Contains(available, "zz-driver") {
		t.Errorf("Available() = %v, missing test drivers", available)
	}
}

func TestRegistryUnregister(t *testing.T) {
	Register("temp-driver", func() Driver { return &fakeDriver{name: "temp-driver"} })
	if !IsRegistered("temp-driver") {
		t.Fatal("temp-driver should be registered")
	}
	Unregister("temp-driver")
	if IsRegistered("temp-driver") {
		t.Error("temp-driver should be unregistered")
	}
}

func TestRegistryOpenInitializes(t *testing.T) {
	register(t, "open-driver", nil)

	d, err := Open("open-driver")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()
	if fd, ok := d.(*fakeDriver); !ok || !fd.inited {
		t.Error("Open() returned an uninitialized driver")
	}
}

func TestRegistryInitDefaultPriority(t *testing.T) {
	// Replace whatever is registered under the priority names.
	saved := snapshot()
	t.Cleanup(func() { restore(saved) })
	restore(nil)

	errNoGPU := errors.New("no GPU")
	register(t, BackendNative, errNoGPU)
	register(t, BackendSim, nil)
	register(t, "extra", nil)

	d, err := InitDefault()
	if err != nil {
		t.Fatalf("InitDefault() error = %v", err)
	}
	if d.Name() != BackendSim {
		t.Errorf("InitDefault() picked %q, want %q after native failed", d.Name(), BackendSim)
	}

	Unregister(BackendSim)
	Unregister("extra")
	if _, err := InitDefault(); !errors.Is(err, errNoGPU) {
		t.Errorf("InitDefault() error = %v, want the native init error", err)
	}

	Unregister(BackendNative)
	if _, err := InitDefault(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("InitDefault() with no drivers = %v, want ErrBackendNotAvailable", err)
	}
}

func TestCandidatesOrder(t *testing.T) {
	saved := snapshot()
	t.Cleanup(func() { restore(saved) })
	restore(nil)

	register(t, "custom", nil)
	register(t, BackendSim, nil)
	register(t, BackendNative, nil)

	want := []string{BackendNative, BackendSim, "custom"}
	if got := candidates(); !slices.Equal(got, want) {
		t.Errorf("candidates() = %v, want %v", got, want)
	}
}

func TestStatuses(t *testing.T) {
	saved := snapshot()
	t.Cleanup(func() { restore(saved) })
	restore(nil)

	errNoGPU := errors.New("no GPU")
	var opened []*fakeDriver
	Register(BackendNative, func() Driver { return &fakeDriver{name: BackendNative, initErr: errNoGPU} })
	Register(BackendSim, func() Driver {
		d := &fakeDriver{name: BackendSim}
		opened = append(opened, d)
		return d
	})

	got := Statuses()
	if len(got) != 2 {
		t.Fatalf("Statuses() = %v, want 2 entries", got)
	}
	tests := []struct {
		name    string
		wantErr error
	}{
		{BackendNative, errNoGPU},
		{BackendSim, nil},
	}
	for i, tt := range tests {
		if got[i].Name != tt.name {
			t.Errorf("Statuses()[%d].Name = %q, want %q", i, got[i].Name, tt.name)
		}
		if !errors.Is(got[i].Err, tt.wantErr) {
			t.Errorf("Statuses()[%d].Err = %v, want %v", i, got[i].Err, tt.wantErr)
		}
	}
	if len(opened) != 1 || !opened[0].closed {
		t.Error("Statuses() should close every driver it initialized")
	}
}

func snapshot() map[string]DriverFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m := make(map[string]DriverFactory, len(drivers))
	for k, v := range drivers {
		m[k] = v
	}
	return m
}

func restore(m map[string]DriverFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	drivers = make(map[string]DriverFactory, len(m))
	for k, v := range m {
		drivers[k] = v
	}
}
