package native

import (
	"unsafe"
)

// Handle is an opaque device memory pointer returned by the backend.
type Handle uintptr

// Metrics mirrors the backend's TensorMetrics struct. Field order and widths
// match the C layout so a *Metrics can be passed straight through the ABI.
type Metrics struct {
	ComputeTimeMs float32 `json:"compute_time_ms"`
	MemoryUsageMB float32 `json:"memory_usage_mb"`
	ActiveKernels int32   `json:"active_kernels"`
}

// DeviceInfo is the raw per-device description reported by the backend.
type DeviceInfo struct {
	ComputeCapabilityMajor int    `json:"compute_capability_major"`
	ComputeCapabilityMinor int    `json:"compute_capability_minor"`
	TotalMemory            uint64 `json:"total_memory"`
	FreeMemory             uint64 `json:"free_memory"`
	MultiprocessorCount    int    `json:"multiprocessor_count"`
}

// Backend is the Go view of the native compute ABI. All sizes are in bytes
// unless the parameter is an element count (m, n, k, batch, seqLen, hidden,
// count). Implementations must be safe for concurrent use.
type Backend interface {
	// DeviceCount returns the number of usable devices, or a value <= 0 when
	// the driver reports none or fails.
	DeviceCount() int
	DeviceInfo(deviceID int) (DeviceInfo, error)

	Allocate(sizeBytes uint64) (Handle, error)
	Free(h Handle)
	CopyToDevice(dst Handle, src []byte) error
	CopyToHost(dst []byte, src Handle) error

	// MatrixMultiply computes c = a * b for row-major a [m x k], b [k x n],
	// c [m x n] float32 device buffers.
	MatrixMultiply(a, b, c Handle, m, n, k int) (Metrics, error)
	// MeanPooling averages input [batch x seqLen x hidden] float32 over the
	// sequence axis using an int64 mask [batch x seqLen] into out [batch x hidden].
	MeanPooling(input, mask, out Handle, batch, seqLen, hidden int) (Metrics, error)
	Relu(input, out Handle, count int) (Metrics, error)
	// ValidateContent runs the backend-owned validity check over host data.
	// The predicate is defined by the backend: 1 means valid, 0 invalid,
	// negative values are backend failures.
	ValidateContent(data []float32, threshold float32) (int, Metrics, error)
}

// Library is a loaded backend that owns an OS library handle.
type Library interface {
	Backend
	Path() string
	Close() error
}

// Opener loads the library at path and binds its entry points.
type Opener func(path string) (Library, error)

// Element enumerates host element types that can be copied to and from
// device buffers.
type Element interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8
}

// SizeOf returns the byte size of n elements of T.
func SizeOf[T Element](n int) uint64 {
	var zero T
	return uint64(n) * uint64(unsafe.Sizeof(zero))
}

// Upload copies src into the device buffer dst.
func Upload[T Element](b Backend, dst Handle, src []T) error {
	return b.CopyToDevice(dst, bytesOf(src))
}

// Download copies len(dst) elements from the device buffer src into dst.
func Download[T Element](b Backend, dst []T, src Handle) error {
	return b.CopyToHost(bytesOf(dst), src)
}

func bytesOf[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// BytesAs reinterprets a byte slice as a slice of T. Trailing bytes that do
// not form a whole element are dropped.
func BytesAs[T Element](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}
