package native

import (
	"fmt"
	"time"
)

// DeviceSnapshot is a point-in-time read of one device. Values are never
// refreshed; take a new snapshot instead.
type DeviceSnapshot struct {
	DeviceID            int       `json:"device_id"`
	ComputeCapability   string    `json:"compute_capability"`
	TotalMemoryBytes    uint64    `json:"total_memory_bytes"`
	FreeMemoryBytes     uint64    `json:"free_memory_bytes"`
	UsedMemoryBytes     uint64    `json:"used_memory_bytes"`
	MultiprocessorCount int       `json:"multiprocessor_count"`
	Timestamp           time.Time `json:"timestamp"`
}

// TakeSnapshot reads the current state of deviceID from b.
func TakeSnapshot(b Backend, deviceID int) (DeviceSnapshot, error) {
	if b == nil {
		return DeviceSnapshot{}, ErrBackendUnavailable("")
	}
	if n := b.DeviceCount(); deviceID < 0 || deviceID >= n {
		return DeviceSnapshot{}, fmt.Errorf("device %d out of range (devices=%d)", deviceID, n)
	}
	info, err := b.DeviceInfo(deviceID)
	if err != nil {
		return DeviceSnapshot{}, err
	}
	used := uint64(0)
	if info.TotalMemory > info.FreeMemory {
		used = info.TotalMemory - info.FreeMemory
	}
	return DeviceSnapshot{
		DeviceID:            deviceID,
		ComputeCapability:   fmt.Sprintf("%d.%d", info.ComputeCapabilityMajor, info.ComputeCapabilityMinor),
		TotalMemoryBytes:    info.TotalMemory,
		FreeMemoryBytes:     info.FreeMemory,
		UsedMemoryBytes:     used,
		MultiprocessorCount: info.MultiprocessorCount,
		Timestamp:           time.Now(),
	}, nil
}
