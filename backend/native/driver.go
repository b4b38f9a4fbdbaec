// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/cmdqueue"
	"github.com/gogpu/cmdqueue/backend"
	"github.com/gogpu/cmdqueue/reclaim"
)

// DefaultFenceTimeout bounds WaitUntilCompleted.
const DefaultFenceTimeout = 5 * time.Second

// Option configures a Driver.
type Option func(*Driver)

// WithFenceTimeout sets how long WaitUntilCompleted waits for the GPU before
// reporting the submission as failed.
func WithFenceTimeout(d time.Duration) Option {
	return func(drv *Driver) {
		if d > 0 {
			drv.timeout = d
		}
	}
}

// WithLabel sets the label prefix of encoders created by the driver.
func WithLabel(label string) Option {
	return func(drv *Driver) {
		drv.label = label
	}
}

// opener creates a device for Init.
type opener func() (hal.Instance, hal.Device, hal.Queue, string, error)

// Driver submits cmdqueue chunks to a HAL device queue. Every command buffer
// gets its own fence, so completion is tracked per submission.
//
// Driver implements backend.Driver.
type Driver struct {
	name    string
	label   string
	timeout time.Duration
	open    opener

	mu       sync.Mutex
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string
	external bool
	inited   bool
	created  uint64
}

var _ backend.Driver = (*Driver)(nil)

// New creates a driver that opens a standalone Vulkan device on Init.
func New(opts ...Option) *Driver {
	return newDriver(backend.BackendNative, openVulkan, opts)
}

// NewNoop creates a driver over the HAL no-op device. Submissions complete
// immediately; useful for exercising the pipeline without a GPU.
func NewNoop(opts ...Option) *Driver {
	return newDriver(NameNoop, openNoop, opts)
}

// NewWithDevice creates a driver over an existing device and queue. The
// driver does not destroy them on Close.
func NewWithDevice(device hal.Device, queue hal.Queue, opts ...Option) (*Driver, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	d := newDriver(backend.BackendNative, nil, opts)
	d.device = device
	d.queue = queue
	d.external = true
	d.inited = true
	d.adapter = "external"
	return d, nil
}

// FromProvider creates a driver sharing the device of a gpucontext
// provider (e.g., a gogpu window). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Driver, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	return NewWithDevice(device, queue, opts...)
}

func newDriver(name string, open opener, opts []Option) *Driver {
	d := &Driver{
		name:    name,
		label:   "cmdqueue",
		timeout: DefaultFenceTimeout,
		open:    open,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the driver identifier.
func (d *Driver) Name() string { return d.name }

// Init opens the device. It is a no-op for drivers over an existing device.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inited {
		return nil
	}
	instance, device, queue, adapter, err := d.open()
	if err != nil {
		return err
	}
	d.instance = instance
	d.device = device
	d.queue = queue
	d.adapter = adapter
	d.inited = true

	cmdqueue.Logger().Info("native: device opened", "driver", d.name, "adapter", adapter)
	return nil
}

// Close destroys the device if the driver opened it.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.inited {
		return
	}
	if !d.external {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.inited = false
	cmdqueue.Logger().Debug("native: driver closed", "driver", d.name, "buffers", d.created)
}

// Device returns the HAL device, or nil before Init.
func (d *Driver) Device() hal.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device
}

// Queue returns the HAL queue, or nil before Init.
func (d *Driver) Queue() hal.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue
}

// Adapter returns the name of the adapter the device was opened on.
func (d *Driver) Adapter() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapter
}

// BufferSource returns a reclaim.Source creating pages on this device.
func (d *Driver) BufferSource() *BufferSource {
	return &BufferSource{device: d.Device(), queue: d.Queue()}
}

// NewReclaimSet creates the staging, copy-temp and command-data allocators
// on this device.
func (d *Driver) NewReclaimSet(config reclaim.Config) *reclaim.Set {
	return reclaim.NewSet(d.BufferSource(), config)
}

// CommandBuffer implements cmdqueue.Driver. Failures to create an encoder
// produce a buffer already in StatusError.
func (d *Driver) CommandBuffer() cmdqueue.CommandBuffer {
	d.mu.Lock()
	device, queue, inited := d.device, d.queue, d.inited
	d.created++
	n := d.created
	d.mu.Unlock()

	cb := &CommandBuffer{
		device:  device,
		queue:   queue,
		timeout: d.timeout,
		label:   fmt.Sprintf("%s-%d", d.label, n),
	}
	if !inited {
		cb.fail(ErrNotInitialized)
		return cb
	}
	cb.begin()
	return cb
}

// openVulkan creates a standalone Vulkan device, preferring discrete and
// integrated GPUs over software adapters.
func openVulkan() (hal.Instance, hal.Device, hal.Queue, string, error) {
	backendAPI, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, nil, nil, "", fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backendAPI.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("native: create instance: %w", err)
	}
	return openFirstAdapter(instance)
}

// openNoop creates a device on the HAL no-op backend.
func openNoop() (hal.Instance, hal.Device, hal.Queue, string, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("native: create noop instance: %w", err)
	}
	return openFirstAdapter(instance)
}

func openFirstAdapter(instance hal.Instance) (hal.Instance, hal.Device, hal.Queue, string, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, "", ErrNoGPU
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, "", fmt.Errorf("native: open device: %w", err)
	}
	return instance, openDev.Device, openDev.Queue, selected.Info.Name, nil
}
