package device

import (
	"errors"
	"testing"
)

func TestArenaAllocAndLookup(t *testing.T) {
	var a arena

	h, s := a.alloc()
	if s == nil {
		t.Fatal("alloc returned nil slot")
	}
	s.shadow = []byte{1, 2, 3}
	s.size = 3

	got, err := a.lookup(h)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != s {
		t.Error("lookup returned a different slot")
	}
}

func TestArenaDoubleFree(t *testing.T) {
	var a arena

	h, _ := a.alloc()
	if _, err := a.release(h); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if _, err := a.release(h); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("second release: want ErrInvalidBuffer, got %v", err)
	}
}

func TestArenaStaleHandleAfterReuse(t *testing.T) {
	var a arena

	old, _ := a.alloc()
	if _, err := a.release(old); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// The freed index is reused with a bumped generation.
	fresh, _ := a.alloc()
	if fresh.index != old.index {
		t.Fatalf("expected index %d to be reused, got %d", old.index, fresh.index)
	}
	if fresh.gen == old.gen {
		t.Error("generation was not bumped on reuse")
	}

	if _, err := a.lookup(old); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("stale handle lookup: want ErrInvalidBuffer, got %v", err)
	}
	if _, err := a.lookup(fresh); err != nil {
		t.Errorf("fresh handle lookup failed: %v", err)
	}
}

func TestArenaOutOfRangeHandle(t *testing.T) {
	var a arena

	if _, err := a.lookup(Buffer{index: 42}); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("want ErrInvalidBuffer, got %v", err)
	}
}

func TestDeviceSize(t *testing.T) {
	cases := []struct {
		in   int
		want uint64
	}{
		{0, 4},
		{1, 4},
		{4, 4},
		{5, 8},
		{8, 8},
		{1023, 1024},
	}
	for _, c := range cases {
		if got := deviceSize(c.in); got != c.want {
			t.Errorf("deviceSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestPaddedShadow(t *testing.T) {
	s := &slot{shadow: []byte{1, 2, 3}}
	p := paddedShadow(s)
	if len(p) != 4 {
		t.Fatalf("padded length = %d, want 4", len(p))
	}
	if p[0] != 1 || p[1] != 2 || p[2] != 3 || p[3] != 0 {
		t.Errorf("padded contents = %v", p)
	}

	aligned := &slot{shadow: []byte{1, 2, 3, 4}}
	if got := paddedShadow(aligned); &got[0] != &aligned.shadow[0] {
		t.Error("aligned shadow should be returned as-is")
	}
}
