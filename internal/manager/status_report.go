package manager

import (
	"github.com/dustin/go-humanize"

	"tensord/internal/native"
	"tensord/internal/registry"
	"tensord/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	snap := m.Snapshot()
	now := timeNow()
	resp := types.StatusResponse{
		State:          string(snap.State),
		Mode:           snap.Mode,
		GPUAvailable:   m.IsGPUAvailable(),
		DeviceCount:    m.DeviceCount(),
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if p, ok := m.resolver.LoadedPath(); ok {
		resp.LoadedPath = p
	}
	if e, ok := m.resolver.LastError(); ok && !resp.GPUAvailable {
		resp.LastError = e
	}
	if m.pool != nil {
		s := m.pool.Stats()
		resp.Pool = &types.PoolStatus{
			MaxBuffers:        s.MaxBuffers,
			CheckedOut:        s.CheckedOut,
			Free:              s.Free,
			DefaultBufferSize: m.pool.DefaultBufferSize(),
			TotalBytes:        s.TotalBytes,
			Allocations:       s.Allocations,
			Reuses:            s.Reuses,
			Waits:             s.Waits,
			AllocFailures:     s.AllocFailures,
		}
	}
	rs := m.registry.Stats()
	resp.Registry = types.RegistryStatus{
		Models:              rs.Models,
		MaxCachedModels:     rs.MaxCachedModels,
		UsedBytes:           rs.UsedBytes,
		MaxCacheMemoryBytes: rs.MaxCacheMemoryBytes,
		Policy:              string(rs.Policy),
		Pinned:              rs.Pinned,
		HistoryEntries:      rs.HistoryEntries,
		Evictions:           rs.Evictions,
		Registrations:       rs.Registrations,
	}
	return resp
}

// ListModels returns the active registry entries.
func (m *Manager) ListModels() []types.Model {
	infos := m.registry.List()
	out := make([]types.Model, len(infos))
	for i, info := range infos {
		out[i] = ToModel(info)
	}
	return out
}

// History returns the superseded versions of name, oldest first.
func (m *Manager) History(name string) []types.Model {
	infos := m.registry.History(name)
	out := make([]types.Model, len(infos))
	for i, info := range infos {
		out[i] = ToModel(info)
	}
	return out
}

// ToModel converts a registry entry into its API payload.
func ToModel(info registry.ModelInfo) types.Model {
	return types.Model{
		Name:           info.Name,
		Version:        info.Version,
		Type:           info.Type,
		SizeBytes:      info.SizeBytes,
		Size:           humanize.IBytes(info.SizeBytes),
		StoragePath:    info.StoragePath,
		DeviceTarget:   info.DeviceTarget,
		LoadedAt:       info.LoadedAt.Unix(),
		LastAccessedAt: info.LastAccessedAt.Unix(),
		AccessCount:    info.AccessCount,
		IsLoaded:       info.IsLoaded,
	}
}

// ToArtifact converts a discovered artifact into its API payload.
func ToArtifact(a registry.Artifact) types.Artifact {
	return types.Artifact{Name: a.Name, Version: a.Version, Type: a.Type, Path: a.Path, SizeBytes: a.SizeBytes}
}

// ToDevice converts a device snapshot into its API payload.
func ToDevice(s native.DeviceSnapshot) types.DeviceResponse {
	return types.DeviceResponse{
		DeviceID:            s.DeviceID,
		ComputeCapability:   s.ComputeCapability,
		TotalMemoryBytes:    s.TotalMemoryBytes,
		FreeMemoryBytes:     s.FreeMemoryBytes,
		UsedMemoryBytes:     s.UsedMemoryBytes,
		MultiprocessorCount: s.MultiprocessorCount,
		TimestampUnixMs:     s.Timestamp.UnixMilli(),
	}
}
