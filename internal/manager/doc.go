// Package manager wires the runtime components together for a process. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, model lookup with disk fallback, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig resolves
//     the native backend and builds the pool, runtime and registry.
//   - types.go: State and Snapshot.
//   - errors.go: error types and helpers (IsModelNotFound, IsDependencyUnavailable).
//   - status_report.go: Status/ListModels/History reporting and payload conversion.
//   - sanity.go: SanityCheck of the backend and model directory.
//
// When the native backend cannot be loaded no buffer pool is created and
// every operation runs on the host. This is a supported mode, not an error.
//
// External packages should treat this package as the orchestration layer and use
// public methods only (e.g., New/NewWithConfig, Ready, ListModels, Status, GetModel).
package manager
