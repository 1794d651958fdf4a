package device

import (
	"errors"
	"testing"

	"github.com/openfluke/webgpu/wgpu"
)

func TestOpenRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		_, err := Open(Options{BatchCapacity: capacity})
		if !errors.Is(err, ErrBadOptions) {
			t.Errorf("capacity %d: want ErrBadOptions, got %v", capacity, err)
		}
	}
}

func TestLaneWidthFor(t *testing.T) {
	cases := []struct {
		vendor uint32
		want   int
	}{
		{vendorNVIDIA, 32},
		{vendorAMD, 32},
		{vendorApple, 32},
		{vendorIntel, 32},
		{vendorQualcomm, 64},
		{0xDEAD, 32}, // unknown vendors assume 32
	}
	for _, c := range cases {
		got := laneWidthFor(wgpu.AdapterInfo{VendorId: c.vendor})
		if got != c.want {
			t.Errorf("vendor %#x: lane width %d, want %d", c.vendor, got, c.want)
		}
	}
}

func TestLaunchNilKernel(t *testing.T) {
	c := &Context{}

	err := c.Launch(nil, nil, Dim3{X: 1, Y: 1, Z: 1}, Dim3{X: 32, Y: 1, Z: 1})
	if !errors.Is(err, ErrNoSuchKernel) {
		t.Errorf("want ErrNoSuchKernel, got %v", err)
	}
}

func TestLaunchRejectsLaneWidth(t *testing.T) {
	c := &Context{}
	k := &Kernel{laneWidth: 64, maxThreads: 1024}

	err := c.Launch(k, nil, Dim3{X: 1, Y: 1, Z: 1}, Dim3{X: 64, Y: 1, Z: 1})
	if !errors.Is(err, ErrLaneWidth) {
		t.Errorf("want ErrLaneWidth, got %v", err)
	}
}

func TestLaunchRejectsGeometry(t *testing.T) {
	c := &Context{}
	k := &Kernel{laneWidth: 32, maxThreads: 1024}

	err := c.Launch(k, nil, Dim3{X: 1, Y: 1, Z: 1}, Dim3{})
	if !errors.Is(err, ErrThreadGroupSize) {
		t.Errorf("zero threads: want ErrThreadGroupSize, got %v", err)
	}

	// 2048*64*32 = 4194304 invocations per group, far past any limit.
	err = c.Launch(k, nil, Dim3{X: 1, Y: 1, Z: 1}, Dim3{X: 2048, Y: 64, Z: 32})
	if !errors.Is(err, ErrThreadGroupSize) {
		t.Errorf("oversized group: want ErrThreadGroupSize, got %v", err)
	}
	if c.pending != 0 || c.encoder != nil {
		t.Error("rejected launch must leave the batch untouched")
	}
}

func TestLaunchStaleHandleLeavesBatchUnchanged(t *testing.T) {
	c := &Context{}
	k := &Kernel{laneWidth: 32, maxThreads: 1024}

	err := c.Launch(k, []Buffer{{index: 3}}, Dim3{X: 1, Y: 1, Z: 1}, Dim3{X: 32, Y: 1, Z: 1})
	if !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("want ErrInvalidBuffer, got %v", err)
	}
	if c.pending != 0 || c.encoder != nil {
		t.Error("rejected launch must leave the batch untouched")
	}
}

func TestDim3Product(t *testing.T) {
	if got := (Dim3{X: 2, Y: 3, Z: 4}).product(); got != 24 {
		t.Errorf("product = %d, want 24", got)
	}
	if got := (Dim3{X: 5, Y: 0, Z: 1}).product(); got != 0 {
		t.Errorf("product = %d, want 0", got)
	}
}
