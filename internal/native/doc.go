// Package native locates, loads and binds the platform compute backend
// (the "tensor_ops" shared library) and exposes its ABI to the rest of the
// runtime.
//
// Loading happens once per process through Resolver.Initialize. A missing or
// broken library is not an error for callers: the resolver records the
// outcome, IsLoaded reports false and every consumer falls back to its CPU
// path. Diagnostics reports where the resolver looked and why each candidate
// was rejected.
//
// Files by concern:
//
//   - backend.go: Backend ABI, Metrics, DeviceInfo, typed Upload/Download.
//   - resolver.go: Resolver state, Initialize, Close, Default handle.
//   - search.go: runtime identifier, container and toolkit detection,
//     candidate directory ordering.
//   - library_*.go, dl_*.go: shared library open and symbol binding
//     (purego on unix, x/sys/windows on Windows).
//   - snapshot.go: immutable device snapshots.
package native
