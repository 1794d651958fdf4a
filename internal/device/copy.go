package device

import "fmt"

// CopyMode is a 2-bit direction descriptor for Copy: bit 0 set means
// the destination operand is a Buffer handle, bit 1 set means the
// source operand is one. Clear bits mean the operand is host memory,
// passed as a []byte.
type CopyMode int

const (
	CopyHostHost       CopyMode = 0
	CopyHostToDevice   CopyMode = 1
	CopyDeviceToHost   CopyMode = 2
	CopyDeviceToDevice CopyMode = 3

	copyDstDevice = 1
	copySrcDevice = 2
)

// Copy performs a synchronous byte-for-byte copy of nbytes between the
// operands, each either a []byte or a Buffer according to mode. A
// device destination additionally enqueues the bytes to the device so
// a later Launch observes them.
//
// Copy does not wait for in-flight device work: reading a buffer the
// device is still writing yields the contents as of the last Sync.
func (c *Context) Copy(dst, src any, nbytes int, mode CopyMode) error {
	if nbytes < 0 {
		return fmt.Errorf("%w: negative length %d", ErrCopyRange, nbytes)
	}
	if mode < CopyHostHost || mode > CopyDeviceToDevice {
		return fmt.Errorf("%w: mode %d", ErrCopyMode, mode)
	}

	srcBytes, _, err := c.copyOperand(src, nbytes, mode&copySrcDevice != 0, "source")
	if err != nil {
		return err
	}
	dstBytes, dstSlot, err := c.copyOperand(dst, nbytes, mode&copyDstDevice != 0, "destination")
	if err != nil {
		return err
	}

	copy(dstBytes, srcBytes)

	if dstSlot != nil && dstSlot.size > 0 {
		c.queue.WriteBuffer(dstSlot.buf, 0, paddedShadow(dstSlot))
		dstSlot.deviceDirty = false
	}
	return nil
}

// copyOperand resolves one side of a Copy to a host byte window of
// length nbytes. Device operands resolve through the arena to their
// shadow; the slot is returned so the caller can upload after writing.
func (c *Context) copyOperand(v any, nbytes int, device bool, which string) ([]byte, *slot, error) {
	if device {
		h, ok := v.(Buffer)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s is %T, mode says Buffer", ErrCopyMode, which, v)
		}
		s, err := c.buffers.lookup(h)
		if err != nil {
			return nil, nil, err
		}
		if nbytes > s.size {
			return nil, nil, fmt.Errorf("%w: %d bytes into %s buffer of %d",
				ErrCopyRange, nbytes, which, s.size)
		}
		return s.shadow[:nbytes], s, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s is %T, mode says []byte", ErrCopyMode, which, v)
	}
	if nbytes > len(b) {
		return nil, nil, fmt.Errorf("%w: %d bytes, %s slice holds %d",
			ErrCopyRange, nbytes, which, len(b))
	}
	return b[:nbytes], nil, nil
}
