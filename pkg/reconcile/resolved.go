package reconcile

// ResolvedSet records the entity ids merged away by completed groups so
// a later group under another strategy cannot touch them again. One set
// exists per run and nothing survives it; there is no cross-run cache.
type ResolvedSet struct {
	ids map[int64]bool
}

// NewResolvedSet creates an empty set.
func NewResolvedSet() *ResolvedSet {
	return &ResolvedSet{ids: make(map[int64]bool)}
}

// Add records ids as resolved.
func (s *ResolvedSet) Add(ids ...int64) {
	for _, id := range ids {
		s.ids[id] = true
	}
}

// Contains reports whether the id was resolved earlier in the run.
func (s *ResolvedSet) Contains(id int64) bool {
	return s.ids[id]
}

// Filter returns the members not yet resolved, preserving order.
func (s *ResolvedSet) Filter(memberIDs []int64) []int64 {
	if len(s.ids) == 0 {
		return memberIDs
	}
	out := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if !s.ids[id] {
			out = append(out, id)
		}
	}
	return out
}
