package registry

import (
	"fmt"
)

// evictLocked removes entries other than exclude, in policy order, until
// required bytes are freed and fewer than MaxCachedModels entries other than
// exclude remain. Pinned entries are never chosen. If the target cannot be
// reached nothing is removed. Caller holds r.mu and r.cycle.
func (r *Registry) evictLocked(exclude string, required uint64) ([]ModelInfo, error) {
	count := len(r.entries)
	if _, ok := r.entries[exclude]; ok && exclude != "" {
		count--
	}
	limit := r.cfg.MaxCachedModels
	if required == 0 && count < limit {
		return nil, nil
	}

	cands := make([]candidate, 0, count)
	pinned := 0
	for name, e := range r.entries {
		if name == exclude {
			continue
		}
		if e.pins.Load() > 0 {
			pinned++
			continue
		}
		cands = append(cands, candidate{e: e, info: e.snapshot()})
	}
	r.cfg.Policy.order(cands)

	var freed uint64
	n := 0
	for n < len(cands) && (freed < required || count-n >= limit) {
		freed += cands[n].info.SizeBytes
		n++
	}
	if freed < required || count-n >= limit {
		name := exclude
		if name == "" {
			name = "eviction request"
		}
		reason := "not enough evictable entries"
		if pinned > 0 {
			reason = fmt.Sprintf("%d pinned entries cannot be evicted", pinned)
		}
		return nil, capacityError{name: name, required: required, available: freed, reason: reason}
	}

	victims := make([]ModelInfo, 0, n)
	for _, c := range cands[:n] {
		victims = append(victims, r.removeLocked(c.e))
	}
	r.evictions.Add(uint64(n))
	for _, v := range victims {
		r.log.Debug().Str("model", v.Name).Str("version", v.Version).Str("policy", string(r.cfg.Policy)).
			Uint64("size_bytes", v.SizeBytes).Msg("evicted")
	}
	return victims, nil
}
