package finalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rkhandel/distgraph/internal/topology"
)

// CentroidSelector picks the master for a mirror set by minimizing total
// torus-hop distance, per spec §4.6. Per the reference (preserved per
// SPEC_FULL.md open question 4), the search ranges over every pid in
// [0, P), not only the mirror set itself — a non-replica pid can therefore
// become master.
type CentroidSelector struct {
	table *topology.Table

	mu   sync.Mutex
	memo map[string]int
}

// NewCentroidSelector returns a selector over the given topology table.
func NewCentroidSelector(table *topology.Table) *CentroidSelector {
	return &CentroidSelector{table: table, memo: make(map[string]int)}
}

// Centroid returns argmin_{c in [0,P)} sum_{m in mirrors, m != c} hop(c, m),
// memoized by the canonicalized mirror set.
func (s *CentroidSelector) Centroid(mirrors []int) (int, error) {
	if len(mirrors) == 0 {
		return 0, fmt.Errorf("finalize: centroid requires a non-empty mirror set")
	}

	key := canonicalKey(mirrors)
	s.mu.Lock()
	if pid, ok := s.memo[key]; ok {
		s.mu.Unlock()
		return pid, nil
	}
	s.mu.Unlock()

	best := -1
	bestSum := -1
	for cand := 0; cand < s.table.NumProcs(); cand++ {
		sum := 0
		for _, m := range mirrors {
			if m == cand {
				continue
			}
			sum += s.table.HopDistance(cand, m)
		}
		if best == -1 || sum < bestSum || (sum == bestSum && cand < best) {
			best = cand
			bestSum = sum
		}
	}
	if best < 0 || best >= s.table.NumProcs() {
		return 0, fmt.Errorf("finalize: centroid selection produced out-of-range pid %d", best)
	}

	s.mu.Lock()
	s.memo[key] = best
	s.mu.Unlock()
	return best, nil
}

// canonicalKey sorts and stringifies a mirror set so that permutations of
// the same set hit the same memo entry.
func canonicalKey(mirrors []int) string {
	sorted := append([]int(nil), mirrors...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, m := range sorted {
		parts[i] = strconv.Itoa(m)
	}
	return strings.Join(parts, ",")
}
