package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Policy selects the order in which entries are evicted.
type Policy string

const (
	PolicyLRU       Policy = "lru"
	PolicyLFU       Policy = "lfu"
	PolicyFIFO      Policy = "fifo"
	PolicySizeBased Policy = "size_based"
)

// Policies lists every supported policy.
var Policies = []Policy{PolicyLRU, PolicyLFU, PolicyFIFO, PolicySizeBased}

// ParsePolicy maps a configuration value onto a Policy. Matching ignores case
// and accepts "-" in place of "_".
func ParsePolicy(s string) (Policy, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch norm {
	case "", string(PolicyLRU):
		return PolicyLRU, nil
	case string(PolicyLFU):
		return PolicyLFU, nil
	case string(PolicyFIFO):
		return PolicyFIFO, nil
	case string(PolicySizeBased), "size", "sizebased":
		return PolicySizeBased, nil
	}
	return "", fmt.Errorf("unknown eviction policy %q", s)
}

// candidate is an entry frozen for one eviction cycle.
type candidate struct {
	e    *entry
	info ModelInfo
}

// lessFunc orders candidates; the first candidate is evicted first.
type lessFunc func(a, b candidate) bool

func (p Policy) less() lessFunc {
	switch p {
	case PolicyLFU:
		return func(a, b candidate) bool {
			if a.info.AccessCount != b.info.AccessCount {
				return a.info.AccessCount < b.info.AccessCount
			}
			return a.info.LastAccessedAt.Before(b.info.LastAccessedAt)
		}
	case PolicyFIFO:
		return func(a, b candidate) bool { return a.info.LoadedAt.Before(b.info.LoadedAt) }
	case PolicySizeBased:
		return func(a, b candidate) bool { return a.info.SizeBytes > b.info.SizeBytes }
	default:
		return func(a, b candidate) bool { return a.info.LastAccessedAt.Before(b.info.LastAccessedAt) }
	}
}

// order sorts cs by policy. Ties fall back to insertion order.
func (p Policy) order(cs []candidate) {
	less := p.less()
	sort.SliceStable(cs, func(i, j int) bool {
		if less(cs[i], cs[j]) {
			return true
		}
		if less(cs[j], cs[i]) {
			return false
		}
		return cs[i].e.seq < cs[j].e.seq
	})
}
