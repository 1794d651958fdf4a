package device

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Dim3 is a 3D launch dimension: workgroup counts for blocks, threads
// per workgroup for thread-group size.
type Dim3 struct {
	X, Y, Z uint32
}

func (d Dim3) product() uint64 {
	return uint64(d.X) * uint64(d.Y) * uint64(d.Z)
}

// Launch records one kernel dispatch into the open batch, creating the
// command encoder and compute pass lazily. Buffers in args are bound
// as sequential argument slots: args[i] becomes @binding(i) of
// @group(0). The entry point's @workgroup_size must equal threads;
// launch geometry covers blocks.X*threads.X × blocks.Y*threads.Y ×
// blocks.Z*threads.Z threads in total.
//
// Reaching the batch capacity submits the batch as part of this call,
// so Launch may block for the duration of a queue submission. That is
// a documented effect of the operation, not an internal detail.
func (c *Context) Launch(k *Kernel, args []Buffer, blocks, threads Dim3) error {
	if k == nil {
		return fmt.Errorf("%w: nil kernel", ErrNoSuchKernel)
	}
	if k.laneWidth != supportedLaneWidth {
		return fmt.Errorf("%w: runtime supports %d, device executes %d",
			ErrLaneWidth, supportedLaneWidth, k.laneWidth)
	}
	group := threads.product()
	if group == 0 {
		return fmt.Errorf("%w: thread-group dimensions must be nonzero", ErrThreadGroupSize)
	}
	if group > uint64(k.maxThreads) {
		return fmt.Errorf("%w: %d threads requested, kernel maximum is %d",
			ErrThreadGroupSize, group, k.maxThreads)
	}

	// Resolve every handle before touching the encoder so a stale
	// handle leaves the batch state unchanged.
	slots := make([]*slot, len(args))
	for i, h := range args {
		s, err := c.buffers.lookup(h)
		if err != nil {
			return err
		}
		slots[i] = s
	}

	if c.encoder == nil {
		enc, err := c.device.CreateCommandEncoder(nil)
		if err != nil {
			return fmt.Errorf("%w: command encoder: %v", ErrEncoderFailed, err)
		}
		c.encoder = enc
	}
	if c.pass == nil {
		c.pass = c.encoder.BeginComputePass(nil)
		if c.pass == nil {
			return fmt.Errorf("%w: compute pass", ErrEncoderFailed)
		}
	}

	pipeline := k.pipeline
	if pipeline == nil {
		p, err := c.buildPipeline(k.mod.shader, k.entry)
		if err != nil {
			return fmt.Errorf("%w: pipeline for %q: %v", ErrEncoderFailed, k.entry, err)
		}
		pipeline = p
		// Commands recorded against the pipeline keep it alive on the
		// device side; the handle is released at submission.
		c.retired = append(c.retired, p)
	}

	// Upload host shadows the device has not seen yet. Queued writes
	// execute ahead of command buffers submitted afterwards, so the
	// dispatch observes them.
	for _, s := range slots {
		if !s.deviceDirty && s.size > 0 {
			c.queue.WriteBuffer(s.buf, 0, paddedShadow(s))
		}
	}

	entries := make([]wgpu.BindGroupEntry, len(slots))
	for i, s := range slots {
		entries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  s.buf,
			Offset:  0,
			Size:    s.buf.GetSize(),
		}
	}
	bg, err := c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "kiln_args",
		Layout:  pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("%w: bind group: %v", ErrEncoderFailed, err)
	}

	c.pass.SetPipeline(pipeline)
	c.pass.SetBindGroup(0, bg, nil)
	c.pass.DispatchWorkgroups(blocks.X, blocks.Y, blocks.Z)
	bg.Release()

	for i, h := range args {
		slots[i].deviceDirty = true
		c.touched[h] = struct{}{}
	}

	c.pending++
	c.log.Debug("dispatch recorded",
		"kernel", k.entry,
		"args", len(args),
		"blocks", blocks, "threads", threads,
		"pending", c.pending)

	if c.pending == c.capacity {
		return c.Submit()
	}
	return nil
}

// Submit seals the open batch and commits it to the queue. It returns
// once the queue has accepted the work, which does not mean the device
// has finished executing it; use Sync for completion. With no open
// batch, Submit is a no-op.
func (c *Context) Submit() error {
	if c.pass == nil {
		return nil
	}
	c.pass.End()
	c.pass = nil

	cmd, err := c.encoder.Finish(nil)
	c.encoder.Release()
	c.encoder = nil
	if err != nil {
		c.pending = 0
		c.releaseRetired()
		return fmt.Errorf("%w: finish: %v", ErrEncoderFailed, err)
	}

	c.queue.Submit(cmd)
	cmd.Release()
	c.releaseRetired()

	c.log.Debug("batch submitted", "dispatches", c.pending)
	c.pending = 0
	c.inFlight = true
	return nil
}

// Sync flushes any open batch, blocks until the device has finished
// executing everything submitted since the last Sync, and makes device
// writes visible to host reads of buffer contents. Afterwards there is
// no open batch and pending is 0. Wait time is proportional to kernel
// execution time; a hung device blocks indefinitely.
func (c *Context) Sync() error {
	if err := c.Submit(); err != nil {
		return err
	}
	if !c.inFlight {
		return nil
	}
	c.device.Poll(true, nil)
	err := c.readTouched()
	c.inFlight = false
	return err
}

func (c *Context) releaseRetired() {
	for _, p := range c.retired {
		p.Release()
	}
	c.retired = c.retired[:0]
}

// readTouched copies every buffer used as a launch argument since the
// last Sync back into its host shadow. One staging encoder carries all
// the copies; staging buffers come from the pool.
func (c *Context) readTouched() error {
	if len(c.touched) == 0 {
		return nil
	}

	type pendingRead struct {
		dst *slot
		st  *stagingBuffer
		n   uint64
	}

	enc, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: readback encoder: %v", ErrSyncFailed, err)
	}
	reads := make([]pendingRead, 0, len(c.touched))
	for h := range c.touched {
		s, err := c.buffers.lookup(h)
		if err != nil {
			// Freed while in flight; nothing left to read into.
			continue
		}
		if s.size == 0 {
			s.deviceDirty = false
			continue
		}
		n := deviceSize(s.size)
		st, err := c.staging.acquire(n)
		if err != nil {
			enc.Release()
			return fmt.Errorf("%w: staging: %v", ErrSyncFailed, err)
		}
		enc.CopyBufferToBuffer(s.buf, 0, st.buf, 0, n)
		reads = append(reads, pendingRead{dst: s, st: st, n: n})
	}

	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("%w: readback finish: %v", ErrSyncFailed, err)
	}
	c.queue.Submit(cmd)
	cmd.Release()

	for _, r := range reads {
		status := wgpu.BufferMapAsyncStatusUnknown
		done := false
		if err := r.st.buf.MapAsync(wgpu.MapModeRead, 0, r.n, func(s wgpu.BufferMapAsyncStatus) {
			status = s
			done = true
		}); err != nil {
			return fmt.Errorf("%w: map: %v", ErrSyncFailed, err)
		}
		for !done {
			c.device.Poll(true, nil)
		}
		if status != wgpu.BufferMapAsyncStatusSuccess {
			return fmt.Errorf("%w: map status %v", ErrSyncFailed, status)
		}
		data := r.st.buf.GetMappedRange(0, uint(r.n))
		copy(r.dst.shadow, data)
		r.st.buf.Unmap()
		r.dst.deviceDirty = false
		c.staging.release(r.st)
	}

	clear(c.touched)
	return nil
}
