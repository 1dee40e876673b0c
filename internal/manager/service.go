package manager

import (
	"context"

	"tensord/pkg/types"
)

// LoadModel is GetModel returning the API payload.
func (m *Manager) LoadModel(ctx context.Context, name string) (types.Model, error) {
	info, err := m.GetModel(ctx, name)
	if err != nil {
		return types.Model{}, err
	}
	return ToModel(info), nil
}

// UnloadModel removes name from the registry. It reports whether an entry
// was removed.
func (m *Manager) UnloadModel(name string) bool {
	if !m.Ready() {
		return false
	}
	return m.registry.Unload(name)
}

// Artifacts lists the model directory as API payloads.
func (m *Manager) Artifacts() ([]types.Artifact, error) {
	arts, err := m.AvailableModels()
	if err != nil {
		return nil, err
	}
	out := make([]types.Artifact, len(arts))
	for i, a := range arts {
		out[i] = ToArtifact(a)
	}
	return out, nil
}

// Device returns a snapshot of device id as an API payload.
func (m *Manager) Device(id int) (types.DeviceResponse, error) {
	s, err := m.DeviceSnapshot(id)
	if err != nil {
		return types.DeviceResponse{}, err
	}
	return ToDevice(s), nil
}
