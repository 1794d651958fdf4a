package device

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Buffer is an opaque handle to a device-memory allocation. Handles
// are values: they can be copied freely and compared for equality. A
// handle survives its allocation being freed only in the sense that
// using it afterwards is detected and reported as ErrInvalidBuffer.
type Buffer struct {
	index uint32
	gen   uint32
}

// slot is one arena entry. WebGPU storage buffers cannot stay
// host-mapped while the GPU uses them, so each allocation pairs the
// device buffer with a host shadow of exactly the requested length.
// The shadow is the stable host-visible region returned by HostBytes.
type slot struct {
	gen  uint32
	live bool

	buf    *wgpu.Buffer
	shadow []byte
	size   int

	// deviceDirty means the device may hold newer contents than the
	// shadow: set when the buffer is used as a launch argument, cleared
	// when Sync reads it back or a Copy overwrites the device side.
	deviceDirty bool
}

// arena is a slot table with generation counters. Freed slots are
// reused, bumping the generation so stale handles are detectable.
type arena struct {
	slots []slot
	free  []uint32
}

func (a *arena) alloc() (Buffer, *slot) {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.live = true
		return Buffer{index: idx, gen: s.gen}, s
	}
	a.slots = append(a.slots, slot{live: true})
	idx := uint32(len(a.slots) - 1)
	return Buffer{index: idx}, &a.slots[idx]
}

func (a *arena) lookup(h Buffer) (*slot, error) {
	if int(h.index) >= len(a.slots) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidBuffer, h.index)
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, fmt.Errorf("%w: index %d generation %d", ErrInvalidBuffer, h.index, h.gen)
	}
	return s, nil
}

// release invalidates the handle and returns the slot so the caller
// can free the device resources it holds.
func (a *arena) release(h Buffer) (*slot, error) {
	s, err := a.lookup(h)
	if err != nil {
		return nil, err
	}
	s.live = false
	s.gen++
	a.free = append(a.free, h.index)
	return s, nil
}

// releaseAll frees every live device buffer. Used at context teardown.
func (a *arena) releaseAll() {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			if s.buf != nil {
				s.buf.Release()
			}
			s.live = false
			s.gen++
			s.buf = nil
			s.shadow = nil
		}
	}
	a.free = a.free[:0]
}

// deviceSize rounds a byte count up to WebGPU's 4-byte copy and
// binding alignment. Zero-length allocations still get a minimal
// device buffer so they remain bindable.
func deviceSize(nbytes int) uint64 {
	if nbytes <= 0 {
		return 4
	}
	return (uint64(nbytes) + 3) &^ 3
}

// Alloc allocates a device buffer of exactly nbytes, visible to the
// host through HostBytes. Failure wraps ErrAllocFailed and indicates
// the device cannot satisfy the request.
func (c *Context) Alloc(nbytes int) (Buffer, error) {
	if nbytes < 0 {
		return Buffer{}, fmt.Errorf("%w: negative size %d", ErrAllocFailed, nbytes)
	}
	buf, err := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "kiln_storage",
		Size:  deviceSize(nbytes),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %d bytes: %v", ErrAllocFailed, nbytes, err)
	}
	h, s := c.buffers.alloc()
	s.buf = buf
	s.shadow = make([]byte, nbytes)
	s.size = nbytes
	s.deviceDirty = false
	return h, nil
}

// Free releases the buffer's device memory and invalidates the handle.
// Freeing a buffer that the device is still executing against is the
// caller's responsibility to avoid.
func (c *Context) Free(h Buffer) error {
	s, err := c.buffers.release(h)
	if err != nil {
		return err
	}
	delete(c.touched, h)
	if s.buf != nil {
		s.buf.Release()
		s.buf = nil
	}
	s.shadow = nil
	return nil
}

// HostBytes returns the stable host-visible region of the buffer,
// exactly as long as the allocation. The slice stays valid until Free.
// Host mutations become device-visible at the next Copy into the
// buffer or the next Launch that takes it as an argument; host reads
// reflect device writes only after Sync.
func (c *Context) HostBytes(h Buffer) ([]byte, error) {
	s, err := c.buffers.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.shadow, nil
}

// Size reports the buffer's allocated length in bytes.
func (c *Context) Size(h Buffer) (int, error) {
	s, err := c.buffers.lookup(h)
	if err != nil {
		return 0, err
	}
	return s.size, nil
}

// paddedShadow returns the shadow padded to the device buffer's 4-byte
// alignment, for Queue.WriteBuffer which requires aligned lengths.
func paddedShadow(s *slot) []byte {
	if len(s.shadow)%4 == 0 {
		return s.shadow
	}
	p := make([]byte, (len(s.shadow)+3)&^3)
	copy(p, s.shadow)
	return p
}
