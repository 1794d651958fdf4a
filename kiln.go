// Package kiln dispatches compiled compute kernels onto a single GPU,
// batching launches into shared command buffers and exposing explicit
// synchronization. It serves a higher-level code generator that emits
// WGSL kernel source and decides launch geometry; kiln only manages
// device state, buffer allocation and the launch/submit/sync protocol.
//
// The package-level functions operate on a process-wide default
// context created by Init. Callers that need multiple independent
// contexts (or want teardown) should use Open and the Context methods
// directly; the two forms are otherwise identical.
//
// All errors returned by this package indicate unrecoverable device or
// environment misconfiguration. Callers should report them and stop;
// kiln never retries internally.
package kiln

import (
	"errors"
	"sync"

	"github.com/kiln-ml/kiln/internal/device"
)

// Core types, re-exported from the runtime implementation.
type (
	Context  = device.Context
	Options  = device.Options
	Buffer   = device.Buffer
	Module   = device.Module
	Kernel   = device.Kernel
	Dim3     = device.Dim3
	CopyMode = device.CopyMode
	Report   = device.Report
)

// Copy direction modes: bit 0 set means the destination is a Buffer,
// bit 1 set means the source is one.
const (
	CopyHostHost       = device.CopyHostHost
	CopyHostToDevice   = device.CopyHostToDevice
	CopyDeviceToHost   = device.CopyDeviceToHost
	CopyDeviceToDevice = device.CopyDeviceToDevice
)

// Sentinel errors, matchable with errors.Is.
var (
	ErrDeviceUnavailable = device.ErrDeviceUnavailable
	ErrBadOptions        = device.ErrBadOptions
	ErrAllocFailed       = device.ErrAllocFailed
	ErrInvalidBuffer     = device.ErrInvalidBuffer
	ErrCompileFailed     = device.ErrCompileFailed
	ErrNoSuchKernel      = device.ErrNoSuchKernel
	ErrEncoderFailed     = device.ErrEncoderFailed
	ErrLaneWidth         = device.ErrLaneWidth
	ErrThreadGroupSize   = device.ErrThreadGroupSize
	ErrCopyMode          = device.ErrCopyMode
	ErrCopyRange         = device.ErrCopyRange
	ErrSyncFailed        = device.ErrSyncFailed

	// ErrNotInitialized is returned by package-level operations before
	// Init has succeeded.
	ErrNotInitialized = errors.New("kiln: Init has not been called")
)

// Open constructs an independent Context. Most callers want Init and
// the package-level functions instead.
func Open(opts Options) (*Context, error) {
	return device.Open(opts)
}

// Probe requests the default adapter and reports its capabilities
// without constructing a context.
func Probe() (*Report, error) {
	return device.Probe()
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
	defaultErr  error
)

// Init constructs the process-wide default context with the given
// batch capacity. Init is idempotent: a second call is a no-op even
// with a different capacity — the first value wins — and returns the
// outcome of the first call. The default context lives for the process
// lifetime and is never released.
func Init(capacity int) error {
	defaultOnce.Do(func() {
		defaultCtx, defaultErr = device.Open(device.Options{BatchCapacity: capacity})
	})
	return defaultErr
}

// Default returns the process-wide context created by Init.
func Default() (*Context, error) {
	if defaultCtx == nil {
		if defaultErr != nil {
			return nil, defaultErr
		}
		return nil, ErrNotInitialized
	}
	return defaultCtx, nil
}

// Alloc allocates a device buffer of exactly nbytes on the default
// context.
func Alloc(nbytes int) (Buffer, error) {
	c, err := Default()
	if err != nil {
		return Buffer{}, err
	}
	return c.Alloc(nbytes)
}

// Free releases a buffer allocated on the default context.
func Free(b Buffer) error {
	c, err := Default()
	if err != nil {
		return err
	}
	return c.Free(b)
}

// HostBytes returns the stable host-visible bytes of a buffer on the
// default context.
func HostBytes(b Buffer) ([]byte, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.HostBytes(b)
}

// LoadModule compiles WGSL source text on the default context.
func LoadModule(source string) (*Module, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.LoadModule(source)
}

// Launch records one kernel dispatch on the default context; reaching
// the batch capacity submits the batch as part of this call.
func Launch(k *Kernel, args []Buffer, blocks, threads Dim3) error {
	c, err := Default()
	if err != nil {
		return err
	}
	return c.Launch(k, args, blocks, threads)
}

// Submit flushes the open batch on the default context without
// waiting for completion.
func Submit() error {
	c, err := Default()
	if err != nil {
		return err
	}
	return c.Submit()
}

// Sync flushes and blocks until the device has finished all submitted
// work on the default context.
func Sync() error {
	c, err := Default()
	if err != nil {
		return err
	}
	return c.Sync()
}
