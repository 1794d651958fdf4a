package device

import "errors"

// Runtime errors. Every one of these signals device or environment
// misconfiguration rather than a transient fault: callers are expected
// to treat them as unrecoverable. The runtime never retries internally.
var (
	// ErrDeviceUnavailable is returned when no WebGPU adapter, device or
	// queue can be obtained.
	ErrDeviceUnavailable = errors.New("device: no usable adapter or device")

	// ErrBadOptions is returned when context options fail validation.
	ErrBadOptions = errors.New("device: invalid context options")

	// ErrAllocFailed is returned when the device cannot satisfy a buffer
	// allocation.
	ErrAllocFailed = errors.New("device: buffer allocation failed")

	// ErrInvalidBuffer is returned when an operation references a buffer
	// handle that was freed, or a stale handle whose slot was reused.
	ErrInvalidBuffer = errors.New("device: buffer handle is freed or stale")

	// ErrCompileFailed is returned when WGSL source does not compile.
	// The wrapped error carries the compiler diagnostic.
	ErrCompileFailed = errors.New("device: kernel module compilation failed")

	// ErrNoSuchKernel is returned when a module has no entry point with
	// the requested name.
	ErrNoSuchKernel = errors.New("device: entry point not found in module")

	// ErrEncoderFailed is returned when a command encoder, compute pass,
	// pipeline or bind group cannot be set up for a dispatch.
	ErrEncoderFailed = errors.New("device: command encoder setup failed")

	// ErrLaneWidth is returned when the device's execution-lane width is
	// not the one width this runtime supports.
	ErrLaneWidth = errors.New("device: unsupported execution-lane width")

	// ErrThreadGroupSize is returned when the requested thread-group
	// dimensions exceed the kernel's maximum thread-group size. The
	// dispatch never reaches the device.
	ErrThreadGroupSize = errors.New("device: thread-group size exceeds kernel maximum")

	// ErrCopyMode is returned when a copy operand does not match the
	// kind its mode bit declares.
	ErrCopyMode = errors.New("device: copy operand does not match mode")

	// ErrCopyRange is returned when a copy length exceeds an operand.
	ErrCopyRange = errors.New("device: copy range exceeds operand size")

	// ErrSyncFailed is returned when readback of device results fails.
	ErrSyncFailed = errors.New("device: synchronization readback failed")
)
