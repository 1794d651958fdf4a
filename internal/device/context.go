// Package device implements the kiln execution runtime on a single GPU
// via WebGPU. A Context owns the device, its one command queue and the
// command batcher; kernels are compiled from WGSL source text supplied
// by the caller, dispatches accumulate into a shared command buffer and
// are flushed either automatically at the configured batch capacity or
// explicitly through Submit and Sync.
//
// A Context is not safe for concurrent use: all operations must be
// invoked from one goroutine at a time, matching the single-queue
// serialization of the device itself.
package device

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/kiln-ml/kiln/internal/logger"
)

// supportedLaneWidth is the one execution-lane width this runtime
// accepts. Kernels generated for kiln assume 32 lanes in lockstep; a
// device reporting any other width is an unsupported configuration.
const supportedLaneWidth = 32

// Options configures a Context.
type Options struct {
	// BatchCapacity is the number of kernel dispatches accumulated into
	// one command buffer before forced submission. Must be at least 1;
	// a capacity of 1 makes every Launch submit immediately.
	BatchCapacity int

	// PowerPreference biases adapter selection. The zero value lets the
	// runtime prefer a high-performance adapter with fallbacks.
	PowerPreference wgpu.PowerPreference

	// DisablePipelineCache rebuilds the compute pipeline on every
	// Launch instead of reusing the one built at kernel resolution.
	// Rebuilding per launch is measurably slower and exists to tolerate
	// callers that mutate pipeline-relevant state externally.
	DisablePipelineCache bool

	// Logger receives structured runtime events. Nil means a default
	// text logger on stderr.
	Logger logger.Logger
}

// Context binds the runtime to one accelerator device and its single
// command queue, and holds the batcher state. Create one with Open.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	info      wgpu.AdapterInfo
	limits    wgpu.Limits
	laneWidth int

	capacity       int
	cachePipelines bool
	log            logger.Logger

	buffers arena
	staging *stagingPool

	// Batcher state. The compute pass exists iff the encoder does, and
	// pending is always in [0, capacity).
	encoder  *wgpu.CommandEncoder
	pass     *wgpu.ComputePassEncoder
	pending  int
	touched  map[Buffer]struct{}
	retired  []*wgpu.ComputePipeline
	inFlight bool
}

// Open constructs a Context: WebGPU instance, adapter, device and
// queue. Errors wrap ErrDeviceUnavailable and are unrecoverable; there
// is no degraded-mode fallback.
func Open(opts Options) (*Context, error) {
	if opts.BatchCapacity < 1 {
		return nil, fmt.Errorf("%w: batch capacity must be at least 1, got %d",
			ErrBadOptions, opts.BatchCapacity)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("%w: could not create WebGPU instance", ErrDeviceUnavailable)
	}

	adapter, err := requestAdapter(instance, opts.PowerPreference)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrDeviceUnavailable, err)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: device has no queue", ErrDeviceUnavailable)
	}

	info := adapter.GetInfo()
	limits := adapter.GetLimits().Limits

	c := &Context{
		instance:       instance,
		adapter:        adapter,
		device:         dev,
		queue:          queue,
		info:           info,
		limits:         limits,
		laneWidth:      laneWidthFor(info),
		capacity:       opts.BatchCapacity,
		cachePipelines: !opts.DisablePipelineCache,
		log:            log,
		staging:        newStagingPool(dev),
		touched:        make(map[Buffer]struct{}),
	}

	log.Info("gpu context ready",
		"adapter", info.Name,
		"backend", info.BackendType.String(),
		"lane_width", c.laneWidth,
		"batch_capacity", c.capacity,
		"max_threads_per_group", limits.MaxComputeInvocationsPerWorkgroup)
	return c, nil
}

// requestAdapter tries high performance first, then the caller's
// preference, then whatever the backend offers.
func requestAdapter(instance *wgpu.Instance, pref wgpu.PowerPreference) (*wgpu.Adapter, error) {
	if pref != wgpu.PowerPreferenceUndefined {
		if a, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: pref}); err == nil && a != nil {
			return a, nil
		}
	}
	if a, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	}); err == nil && a != nil {
		return a, nil
	}
	a, err := instance.RequestAdapter(nil)
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("no adapter available")
	}
	return a, nil
}

// Known PCI vendor IDs, used to derive the execution-lane width when
// the backend does not report it directly.
const (
	vendorAMD      = 0x1002
	vendorQualcomm = 0x5143
	vendorNVIDIA   = 0x10DE
	vendorApple    = 0x106B
	vendorIntel    = 0x8086
)

// laneWidthFor maps the adapter to its execution-lane width. NVIDIA,
// Apple, Intel and RDNA-class AMD hardware all execute 32 lanes in
// lockstep; Adreno runs wider waves and is therefore rejected at
// launch time.
func laneWidthFor(info wgpu.AdapterInfo) int {
	switch info.VendorId {
	case vendorQualcomm:
		return 64
	case vendorAMD, vendorNVIDIA, vendorApple, vendorIntel:
		return 32
	default:
		return 32
	}
}

// LaneWidth reports the device's execution-lane width.
func (c *Context) LaneWidth() int { return c.laneWidth }

// BatchCapacity reports the configured dispatches-per-batch limit.
func (c *Context) BatchCapacity() int { return c.capacity }

// PendingDispatches reports how many dispatches the open batch holds.
// Always in [0, BatchCapacity).
func (c *Context) PendingDispatches() int { return c.pending }

// BatchOpen reports whether a command buffer is currently being built.
func (c *Context) BatchOpen() bool { return c.encoder != nil }

// AdapterInfo returns information about the selected GPU adapter.
func (c *Context) AdapterInfo() wgpu.AdapterInfo { return c.info }

// Release flushes any open batch, waits for the device, and tears the
// context down. The Context must not be used afterwards.
func (c *Context) Release() {
	if c.device != nil {
		if err := c.Sync(); err != nil {
			c.log.Warn("release: final sync failed", "err", err)
		}
	}
	if c.staging != nil {
		c.staging.clear()
		c.staging = nil
	}
	c.buffers.releaseAll()
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}
