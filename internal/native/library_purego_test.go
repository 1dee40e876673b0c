//go:build darwin || freebsd || linux || windows

package native

import (
	"testing"
	"unsafe"
)

func TestLibrary_DeviceCountInitializesOnce(t *testing.T) {
	calls := 0
	l := &library{initTensorContext: func() int32 { calls++; return 2 }}
	for i := 0; i < 3; i++ {
		if n := l.DeviceCount(); n != 2 {
			t.Fatalf("DeviceCount=%d", n)
		}
	}
	if calls != 1 {
		t.Fatalf("InitTensorContext called %d times", calls)
	}
}

func TestLibrary_ValidateContentEmptyReachesBackend(t *testing.T) {
	var gotCount int32 = -1
	var gotPtr unsafe.Pointer
	l := &library{validateContent: func(data unsafe.Pointer, count int32, _ float32, _ *Metrics) int32 {
		gotPtr, gotCount = data, count
		return 0
	}}
	rc, _, err := l.ValidateContent(nil, 0.5)
	if err != nil {
		t.Fatalf("ValidateContent: %v", err)
	}
	if rc != 0 || gotCount != 0 || gotPtr != nil {
		t.Fatalf("rc=%d count=%d ptr=%v", rc, gotCount, gotPtr)
	}

	l.validateContent = func(unsafe.Pointer, int32, float32, *Metrics) int32 { return -3 }
	if _, _, err := l.ValidateContent([]float32{1}, 0.5); err == nil {
		t.Fatalf("negative return code must be an error")
	}
}
