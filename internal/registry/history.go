package registry

import (
	"context"
)

// HistoryStore persists version history across restarts.
type HistoryStore interface {
	// Append records info and keeps at most keep entries for info.Name.
	Append(ctx context.Context, info ModelInfo, keep int) error
	// Load returns the retained history per model name, oldest first, with
	// at most keep entries per name.
	Load(ctx context.Context, keep int) (map[string][]ModelInfo, error)
}

// History returns the retained superseded versions of name, oldest first.
func (r *Registry) History(name string) []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := r.history[name]
	out := make([]ModelInfo, len(h))
	copy(out, h)
	return out
}

// HistoryNames returns the names with retained history.
func (r *Registry) HistoryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.history))
	for name, h := range r.history {
		if len(h) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// archiveLocked appends infos to their histories and returns the entries
// dropped to respect MaxVersionsPerModel.
func (r *Registry) archiveLocked(infos []ModelInfo) []ModelInfo {
	if !r.cfg.TrackVersions {
		return nil
	}
	var dropped []ModelInfo
	for _, info := range infos {
		info.IsLoaded = false
		h := append(r.history[info.Name], info)
		if over := len(h) - r.cfg.MaxVersionsPerModel; over > 0 {
			dropped = append(dropped, h[:over]...)
			h = append([]ModelInfo(nil), h[over:]...)
		}
		r.history[info.Name] = h
	}
	return dropped
}

// persist writes archived entries to the store. Failures are logged and do
// not undo the in-memory change.
func (r *Registry) persist(ctx context.Context, infos []ModelInfo) {
	if r.store == nil || !r.cfg.TrackVersions || len(infos) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, info := range infos {
		info.IsLoaded = false
		if err := r.store.Append(ctx, info, r.cfg.MaxVersionsPerModel); err != nil {
			r.log.Warn().Err(err).Str("model", info.Name).Msg("persist version history")
		}
	}
}
