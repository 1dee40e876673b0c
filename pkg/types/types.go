package types

// Model describes a cached model or one of its superseded versions.
type Model struct {
	// Unique model name.
	// example: minilm
	Name string `json:"name" example:"minilm"`
	// Version string parsed from the artifact name or supplied at registration.
	// example: 1.2
	Version string `json:"version" example:"1.2"`
	// Artifact format.
	// example: onnx
	Type string `json:"type" example:"onnx"`
	// Bytes attributed to the model against the cache memory budget.
	// example: 90868376
	SizeBytes uint64 `json:"size_bytes" example:"90868376"`
	// Human readable size.
	// example: 87 MiB
	Size string `json:"size" example:"87 MiB"`
	// Path of the artifact on disk.
	// example: /models/minilm@1.2.onnx
	StoragePath string `json:"storage_path" example:"/models/minilm@1.2.onnx"`
	// Device the model targets.
	// example: cuda:0
	DeviceTarget string `json:"device_target" example:"cuda:0"`
	// Registration time (unix seconds).
	// example: 1700000000
	LoadedAt int64 `json:"loaded_at_unix" example:"1700000000"`
	// Last lookup time (unix seconds).
	// example: 1700000100
	LastAccessedAt int64 `json:"last_accessed_at_unix" example:"1700000100"`
	// Number of lookups since registration.
	// example: 42
	AccessCount int64 `json:"access_count" example:"42"`
	// False for history entries.
	// example: true
	IsLoaded bool `json:"is_loaded" example:"true"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Active cache entries.
	Models []Model `json:"models"`
	// Artifacts found in the model cache directory.
	Available []Artifact `json:"available,omitempty"`
}

// Artifact is a model file found in the model cache directory.
type Artifact struct {
	// example: minilm
	Name string `json:"name" example:"minilm"`
	// example: 1.2
	Version string `json:"version" example:"1.2"`
	// example: onnx
	Type string `json:"type" example:"onnx"`
	// example: /models/minilm@1.2.onnx
	Path string `json:"path" example:"/models/minilm@1.2.onnx"`
	// example: 90868376
	SizeBytes uint64 `json:"size_bytes" example:"90868376"`
}

// HistoryResponse is returned by GET /models/{name}/history.
type HistoryResponse struct {
	// example: minilm
	Name string `json:"name" example:"minilm"`
	// Superseded versions, oldest first.
	Versions []Model `json:"versions"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: minilm
	Error string `json:"error" example:"model not found: minilm"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// PoolStatus summarizes the device buffer pool.
type PoolStatus struct {
	// example: 16
	MaxBuffers int `json:"max_buffers" example:"16"`
	// example: 2
	CheckedOut int `json:"checked_out" example:"2"`
	// example: 3
	Free int `json:"free" example:"3"`
	// example: 67108864
	DefaultBufferSize uint64 `json:"default_buffer_size_bytes" example:"67108864"`
	// example: 5242880
	TotalBytes uint64 `json:"total_bytes" example:"5242880"`
	// example: 12
	Allocations uint64 `json:"allocations" example:"12"`
	// example: 300
	Reuses uint64 `json:"reuses" example:"300"`
	// example: 4
	Waits uint64 `json:"waits" example:"4"`
	// example: 0
	AllocFailures uint64 `json:"alloc_failures" example:"0"`
}

// RegistryStatus summarizes the model registry.
type RegistryStatus struct {
	// example: 3
	Models int `json:"models" example:"3"`
	// example: 10
	MaxCachedModels int `json:"max_cached_models" example:"10"`
	// example: 272605128
	UsedBytes uint64 `json:"used_bytes" example:"272605128"`
	// example: 4294967296
	MaxCacheMemoryBytes uint64 `json:"max_cache_memory_bytes" example:"4294967296"`
	// example: lru
	Policy string `json:"policy" example:"lru"`
	// example: 1
	Pinned int `json:"pinned" example:"1"`
	// example: 2
	HistoryEntries int `json:"history_entries" example:"2"`
	// example: 5
	Evictions uint64 `json:"evictions" example:"5"`
	// example: 12
	Registrations uint64 `json:"registrations" example:"12"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state (loading, ready, closed).
	// example: ready
	State string `json:"state" example:"ready"`
	// Execution mode: gpu when the native backend is loaded, cpu otherwise.
	// example: gpu
	Mode string `json:"mode" example:"gpu"`
	// example: true
	GPUAvailable bool `json:"gpu_available" example:"true"`
	// example: 1
	DeviceCount int `json:"device_count" example:"1"`
	// Path of the loaded native library.
	// example: /usr/local/lib/libtensor_ops.so
	LoadedPath string `json:"loaded_path,omitempty" example:"/usr/local/lib/libtensor_ops.so"`
	// Last native loading error, if the backend is unavailable.
	LastError string `json:"last_error,omitempty"`
	// Buffer pool state; absent in cpu mode.
	Pool *PoolStatus `json:"pool,omitempty"`
	// Model registry state.
	Registry RegistryStatus `json:"registry"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// DeviceResponse is returned by GET /devices/{id}.
type DeviceResponse struct {
	// example: 0
	DeviceID int `json:"device_id" example:"0"`
	// example: 8.6
	ComputeCapability string `json:"compute_capability" example:"8.6"`
	// example: 8589934592
	TotalMemoryBytes uint64 `json:"total_memory_bytes" example:"8589934592"`
	// example: 6442450944
	FreeMemoryBytes uint64 `json:"free_memory_bytes" example:"6442450944"`
	// example: 2147483648
	UsedMemoryBytes uint64 `json:"used_memory_bytes" example:"2147483648"`
	// example: 68
	MultiprocessorCount int `json:"multiprocessor_count" example:"68"`
	// Snapshot time (unix milliseconds).
	// example: 1700000000000
	TimestampUnixMs int64 `json:"timestamp_unix_ms" example:"1700000000000"`
}
