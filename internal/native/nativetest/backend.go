// Package nativetest provides an in-memory native.Backend that executes the
// ABI kernels on host memory. It lets tests drive the device path of the
// runtime without a GPU.
package nativetest

import (
	"fmt"
	"sync"
	"time"

	"tensord/internal/native"
)

// Backend simulates a single device. Device memory is a map of byte slices
// keyed by handle.
type Backend struct {
	mu      sync.Mutex
	next    native.Handle
	mem     map[native.Handle][]byte
	allocs  int
	frees   int
	devices int
	info    native.DeviceInfo

	// FailAllocation, when set, is consulted before each allocation; returning
	// true makes that allocation fail as if the device were out of memory.
	FailAllocation func(size uint64) bool
	// Validate implements ValidateContent. Defaults to reporting valid.
	Validate func(data []float32, threshold float32) int
	// KernelDelay is slept inside every kernel to widen race windows.
	KernelDelay time.Duration
}

// New returns a simulated backend with one device.
func New() *Backend {
	return &Backend{
		next:    0x1000,
		mem:     make(map[native.Handle][]byte),
		devices: 1,
		info: native.DeviceInfo{
			ComputeCapabilityMajor: 8,
			ComputeCapabilityMinor: 6,
			TotalMemory:            8 << 30,
			FreeMemory:             8 << 30,
			MultiprocessorCount:    68,
		},
	}
}

// SetDeviceCount changes the value reported by DeviceCount.
func (b *Backend) SetDeviceCount(n int) {
	b.mu.Lock()
	b.devices = n
	b.mu.Unlock()
}

func (b *Backend) DeviceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices
}

func (b *Backend) DeviceInfo(deviceID int) (native.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if deviceID < 0 || deviceID >= b.devices {
		return native.DeviceInfo{}, fmt.Errorf("no device %d", deviceID)
	}
	info := b.info
	var used uint64
	for _, m := range b.mem {
		used += uint64(len(m))
	}
	if used < info.FreeMemory {
		info.FreeMemory -= used
	} else {
		info.FreeMemory = 0
	}
	return info, nil
}

func (b *Backend) Allocate(sizeBytes uint64) (native.Handle, error) {
	if b.FailAllocation != nil && b.FailAllocation(sizeBytes) {
		return 0, native.ErrAllocation(sizeBytes)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next += 0x1000
	h := b.next
	b.mem[h] = make([]byte, sizeBytes)
	b.allocs++
	return h, nil
}

func (b *Backend) Free(h native.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mem[h]; !ok {
		panic(fmt.Sprintf("nativetest: free of unknown handle %#x", uintptr(h)))
	}
	delete(b.mem, h)
	b.frees++
}

func (b *Backend) region(h native.Handle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.mem[h]
	if !ok {
		return nil, fmt.Errorf("unknown handle %#x", uintptr(h))
	}
	return m, nil
}

func (b *Backend) CopyToDevice(dst native.Handle, src []byte) error {
	m, err := b.region(dst)
	if err != nil {
		return err
	}
	if len(src) > len(m) {
		return fmt.Errorf("copy of %d bytes overflows %d byte buffer", len(src), len(m))
	}
	copy(m, src)
	return nil
}

func (b *Backend) CopyToHost(dst []byte, src native.Handle) error {
	m, err := b.region(src)
	if err != nil {
		return err
	}
	if len(dst) > len(m) {
		return fmt.Errorf("copy of %d bytes overflows %d byte buffer", len(dst), len(m))
	}
	copy(dst, m)
	return nil
}

func (b *Backend) floats(h native.Handle, n int) ([]float32, error) {
	m, err := b.region(h)
	if err != nil {
		return nil, err
	}
	f := native.BytesAs[float32](m)
	if len(f) < n {
		return nil, fmt.Errorf("buffer %#x holds %d floats, need %d", uintptr(h), len(f), n)
	}
	return f[:n], nil
}

func (b *Backend) metrics(start time.Time) native.Metrics {
	b.mu.Lock()
	var used uint64
	for _, m := range b.mem {
		used += uint64(len(m))
	}
	b.mu.Unlock()
	return native.Metrics{
		ComputeTimeMs: float32(time.Since(start).Seconds() * 1000),
		MemoryUsageMB: float32(used) / (1 << 20),
		ActiveKernels: 1,
	}
}

func (b *Backend) MatrixMultiply(a, bh, c native.Handle, m, n, k int) (native.Metrics, error) {
	start := time.Now()
	A, err := b.floats(a, m*k)
	if err != nil {
		return native.Metrics{}, err
	}
	B, err := b.floats(bh, k*n)
	if err != nil {
		return native.Metrics{}, err
	}
	C, err := b.floats(c, m*n)
	if err != nil {
		return native.Metrics{}, err
	}
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			var sum float32
			for p := 0; p < k; p++ {
				sum += A[row*k+p] * B[p*n+col]
			}
			C[row*n+col] = sum
		}
	}
	time.Sleep(b.KernelDelay)
	return b.metrics(start), nil
}

func (b *Backend) MeanPooling(input, mask, out native.Handle, batch, seqLen, hidden int) (native.Metrics, error) {
	start := time.Now()
	in, err := b.floats(input, batch*seqLen*hidden)
	if err != nil {
		return native.Metrics{}, err
	}
	mm, err := b.region(mask)
	if err != nil {
		return native.Metrics{}, err
	}
	msk := native.BytesAs[int64](mm)
	if len(msk) < batch*seqLen {
		return native.Metrics{}, fmt.Errorf("mask holds %d entries, need %d", len(msk), batch*seqLen)
	}
	o, err := b.floats(out, batch*hidden)
	if err != nil {
		return native.Metrics{}, err
	}
	for bi := 0; bi < batch; bi++ {
		for h := 0; h < hidden; h++ {
			var sum float32
			count := 0
			for s := 0; s < seqLen; s++ {
				if msk[bi*seqLen+s] != 0 {
					sum += in[(bi*seqLen+s)*hidden+h]
					count++
				}
			}
			if count > 0 {
				o[bi*hidden+h] = sum / float32(count)
			} else {
				o[bi*hidden+h] = 0
			}
		}
	}
	time.Sleep(b.KernelDelay)
	return b.metrics(start), nil
}

func (b *Backend) Relu(input, out native.Handle, count int) (native.Metrics, error) {
	start := time.Now()
	in, err := b.floats(input, count)
	if err != nil {
		return native.Metrics{}, err
	}
	o, err := b.floats(out, count)
	if err != nil {
		return native.Metrics{}, err
	}
	for i, v := range in {
		if v > 0 {
			o[i] = v
		} else {
			o[i] = 0
		}
	}
	time.Sleep(b.KernelDelay)
	return b.metrics(start), nil
}

func (b *Backend) ValidateContent(data []float32, threshold float32) (int, native.Metrics, error) {
	start := time.Now()
	rc := 1
	if b.Validate != nil {
		rc = b.Validate(data, threshold)
	}
	if rc < 0 {
		return rc, b.metrics(start), fmt.Errorf("validate returned %d", rc)
	}
	return rc, b.metrics(start), nil
}

// Live returns the number of allocations not yet freed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mem)
}

// Counts returns the total number of allocations and frees.
func (b *Backend) Counts() (allocs, frees int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocs, b.frees
}
