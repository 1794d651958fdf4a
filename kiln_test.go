package kiln

import (
	"bytes"
	"errors"
	"testing"
)

func TestDefaultRequiresInit(t *testing.T) {
	if defaultCtx != nil || defaultErr != nil {
		t.Skip("default context already initialized by an earlier test")
	}

	if _, err := Default(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Default: want ErrNotInitialized, got %v", err)
	}
	if _, err := Alloc(16); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Alloc: want ErrNotInitialized, got %v", err)
	}
	if err := Sync(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Sync: want ErrNotInitialized, got %v", err)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	if err := Init(3); err != nil {
		t.Skipf("WebGPU not available: %v", err)
	}

	c, err := Default()
	if err != nil {
		t.Fatalf("Default after Init: %v", err)
	}
	if c.BatchCapacity() != 3 {
		t.Errorf("capacity = %d, want 3", c.BatchCapacity())
	}

	// A second Init is a no-op; the first capacity wins.
	if err := Init(99); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	c2, err := Default()
	if err != nil {
		t.Fatalf("Default after second Init: %v", err)
	}
	if c2 != c {
		t.Error("second Init replaced the default context")
	}
	if c2.BatchCapacity() != 3 {
		t.Errorf("capacity after second Init = %d, want 3", c2.BatchCapacity())
	}
}

func TestPackageLevelRoundTrip(t *testing.T) {
	if err := Init(3); err != nil {
		t.Skipf("WebGPU not available: %v", err)
	}

	buf, err := Alloc(32)
	if err != nil {
		t.Fatalf("alloc failed: %v", err)
	}
	defer Free(buf)

	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(255 - i)
	}
	if err := Copy(buf, src, 32, CopyHostToDevice); err != nil {
		t.Fatalf("host to device copy failed: %v", err)
	}
	if err := Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	got, err := HostBytes(buf)
	if err != nil {
		t.Fatalf("host bytes failed: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Error("round trip mismatch")
	}
}
