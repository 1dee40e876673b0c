//go:build darwin || freebsd || linux || windows

package native

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// Entry point names exported by the tensor_ops library.
const (
	symInitTensorContext = "InitTensorContext"
	symGetDeviceInfo     = "GetDeviceInfo"
	symAllocate          = "AllocateDeviceMemory"
	symFree              = "FreeDeviceMemory"
	symCopyToDevice      = "CopyToDevice"
	symCopyToHost        = "CopyToHost"
	symMatrixMultiply    = "MatrixMultiply_GPU"
	symMeanPooling       = "MeanPooling_GPU"
	symRelu              = "ReluActivation_GPU"
	symValidateContent   = "ValidateTensorContent"
)

// deviceInfoC matches the C struct filled by GetDeviceInfo.
type deviceInfoC struct {
	Major               int32
	Minor               int32
	TotalMemory         uint64
	FreeMemory          uint64
	MultiprocessorCount int32
	_                   int32
}

// library binds the exported functions of one loaded tensor_ops library.
type library struct {
	path   string
	handle uintptr

	closeOnce sync.Once
	initOnce  sync.Once
	devices   int

	initTensorContext func() int32
	getDeviceInfo     func(deviceID int32, info *deviceInfoC) int32
	allocate          func(size uintptr) uintptr
	free              func(ptr uintptr)
	copyToDevice      func(dst uintptr, src unsafe.Pointer, size uintptr)
	copyToHost        func(dst unsafe.Pointer, src uintptr, size uintptr)
	matrixMultiply    func(a, b, c uintptr, m, n, k int32, metrics *Metrics)
	meanPooling       func(input, mask, out uintptr, batch, seqLen, hidden int32, metrics *Metrics)
	relu              func(input, out uintptr, count int32, metrics *Metrics)
	validateContent   func(data unsafe.Pointer, count int32, threshold float32, metrics *Metrics) int32
}

// OpenLibrary is the default Opener: it loads the shared library at path and
// binds every required entry point. GetDeviceInfo is optional.
func OpenLibrary(path string) (Library, error) {
	h, err := dlopen(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	lib := &library{path: path, handle: h}
	if err := lib.bind(); err != nil {
		_ = dlclose(h)
		return nil, err
	}
	return lib, nil
}

func (l *library) bind() error {
	required := []struct {
		name string
		fptr any
	}{
		{symInitTensorContext, &l.initTensorContext},
		{symAllocate, &l.allocate},
		{symFree, &l.free},
		{symCopyToDevice, &l.copyToDevice},
		{symCopyToHost, &l.copyToHost},
		{symMatrixMultiply, &l.matrixMultiply},
		{symMeanPooling, &l.meanPooling},
		{symRelu, &l.relu},
		{symValidateContent, &l.validateContent},
	}
	for _, s := range required {
		addr, err := dlsym(l.handle, s.name)
		if err != nil || addr == 0 {
			return symbolError{path: l.path, symbol: s.name}
		}
		purego.RegisterFunc(s.fptr, addr)
	}
	if addr, err := dlsym(l.handle, symGetDeviceInfo); err == nil && addr != 0 {
		purego.RegisterFunc(&l.getDeviceInfo, addr)
	}
	return nil
}

func (l *library) Path() string { return l.path }

func (l *library) Close() error {
	var err error
	l.closeOnce.Do(func() { err = dlclose(l.handle) })
	return err
}

// DeviceCount runs InitTensorContext on first use and returns the cached
// count afterwards.
func (l *library) DeviceCount() int {
	l.initOnce.Do(func() { l.devices = int(l.initTensorContext()) })
	return l.devices
}

func (l *library) DeviceInfo(deviceID int) (DeviceInfo, error) {
	if l.getDeviceInfo == nil {
		return DeviceInfo{}, symbolError{path: l.path, symbol: symGetDeviceInfo}
	}
	var raw deviceInfoC
	if rc := l.getDeviceInfo(int32(deviceID), &raw); rc != 0 {
		return DeviceInfo{}, errors.Errorf("GetDeviceInfo(%d) returned %d", deviceID, rc)
	}
	return DeviceInfo{
		ComputeCapabilityMajor: int(raw.Major),
		ComputeCapabilityMinor: int(raw.Minor),
		TotalMemory:            raw.TotalMemory,
		FreeMemory:             raw.FreeMemory,
		MultiprocessorCount:    int(raw.MultiprocessorCount),
	}, nil
}

func (l *library) Allocate(sizeBytes uint64) (Handle, error) {
	p := l.allocate(uintptr(sizeBytes))
	if p == 0 {
		return 0, ErrAllocation(sizeBytes)
	}
	return Handle(p), nil
}

func (l *library) Free(h Handle) {
	if h != 0 {
		l.free(uintptr(h))
	}
}

func (l *library) CopyToDevice(dst Handle, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	l.copyToDevice(uintptr(dst), unsafe.Pointer(&src[0]), uintptr(len(src)))
	runtime.KeepAlive(src)
	return nil
}

func (l *library) CopyToHost(dst []byte, src Handle) error {
	if len(dst) == 0 {
		return nil
	}
	l.copyToHost(unsafe.Pointer(&dst[0]), uintptr(src), uintptr(len(dst)))
	runtime.KeepAlive(dst)
	return nil
}

func (l *library) MatrixMultiply(a, b, c Handle, m, n, k int) (Metrics, error) {
	var met Metrics
	l.matrixMultiply(uintptr(a), uintptr(b), uintptr(c), int32(m), int32(n), int32(k), &met)
	return met, nil
}

func (l *library) MeanPooling(input, mask, out Handle, batch, seqLen, hidden int) (Metrics, error) {
	var met Metrics
	l.meanPooling(uintptr(input), uintptr(mask), uintptr(out), int32(batch), int32(seqLen), int32(hidden), &met)
	return met, nil
}

func (l *library) Relu(input, out Handle, count int) (Metrics, error) {
	var met Metrics
	l.relu(uintptr(input), uintptr(out), int32(count), &met)
	return met, nil
}

func (l *library) ValidateContent(data []float32, threshold float32) (int, Metrics, error) {
	var met Metrics
	var p unsafe.Pointer
	if len(data) > 0 {
		p = unsafe.Pointer(&data[0])
	}
	rc := l.validateContent(p, int32(len(data)), threshold, &met)
	runtime.KeepAlive(data)
	if rc < 0 {
		return int(rc), met, errors.Errorf("%s returned %d", symValidateContent, rc)
	}
	return int(rc), met, nil
}
