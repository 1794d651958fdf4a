package device

import (
	"bytes"
	"errors"
	"testing"
)

// Host-to-host copies and operand validation never touch the device,
// so they are exercised on a zero Context.

func TestCopyHostHost(t *testing.T) {
	c := &Context{}

	src := []byte{1, 2, 3, 4, 5}
	dst := make([]byte, 5)
	if err := c.Copy(dst, src, 5, CopyHostHost); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if !bytes.Equal(dst, src) {
		t.Errorf("dst = %v, want %v", dst, src)
	}
}

func TestCopyPartialLength(t *testing.T) {
	c := &Context{}

	src := []byte{1, 2, 3, 4}
	dst := []byte{9, 9, 9, 9}
	if err := c.Copy(dst, src, 2, CopyHostHost); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	want := []byte{1, 2, 9, 9}
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v, want %v", dst, want)
	}
}

func TestCopyZeroLength(t *testing.T) {
	c := &Context{}

	if err := c.Copy([]byte{}, []byte{}, 0, CopyHostHost); err != nil {
		t.Errorf("zero-length copy failed: %v", err)
	}
}

func TestCopyNegativeLength(t *testing.T) {
	c := &Context{}

	err := c.Copy(make([]byte, 4), make([]byte, 4), -1, CopyHostHost)
	if !errors.Is(err, ErrCopyRange) {
		t.Errorf("want ErrCopyRange, got %v", err)
	}
}

func TestCopyUnknownMode(t *testing.T) {
	c := &Context{}

	for _, mode := range []CopyMode{-1, 4, 99} {
		err := c.Copy(make([]byte, 4), make([]byte, 4), 4, mode)
		if !errors.Is(err, ErrCopyMode) {
			t.Errorf("mode %d: want ErrCopyMode, got %v", mode, err)
		}
	}
}

func TestCopyOperandTypeMismatch(t *testing.T) {
	c := &Context{}

	// Mode says the destination is a Buffer but a slice is passed.
	err := c.Copy(make([]byte, 4), make([]byte, 4), 4, CopyHostToDevice)
	if !errors.Is(err, ErrCopyMode) {
		t.Errorf("slice dst in device mode: want ErrCopyMode, got %v", err)
	}

	// Mode says the source is a Buffer but a slice is passed.
	err = c.Copy(make([]byte, 4), make([]byte, 4), 4, CopyDeviceToHost)
	if !errors.Is(err, ErrCopyMode) {
		t.Errorf("slice src in device mode: want ErrCopyMode, got %v", err)
	}

	// Mode says host memory but a Buffer handle is passed.
	err = c.Copy(make([]byte, 4), Buffer{}, 4, CopyHostHost)
	if !errors.Is(err, ErrCopyMode) {
		t.Errorf("Buffer src in host mode: want ErrCopyMode, got %v", err)
	}
}

func TestCopyStaleBufferOperand(t *testing.T) {
	c := &Context{}

	err := c.Copy(make([]byte, 4), Buffer{index: 7}, 4, CopyDeviceToHost)
	if !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("want ErrInvalidBuffer, got %v", err)
	}
}

func TestCopyRangeOverrun(t *testing.T) {
	c := &Context{}

	err := c.Copy(make([]byte, 2), make([]byte, 8), 8, CopyHostHost)
	if !errors.Is(err, ErrCopyRange) {
		t.Errorf("short dst: want ErrCopyRange, got %v", err)
	}

	err = c.Copy(make([]byte, 8), make([]byte, 2), 8, CopyHostHost)
	if !errors.Is(err, ErrCopyRange) {
		t.Errorf("short src: want ErrCopyRange, got %v", err)
	}
}
