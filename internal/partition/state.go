package partition

import "sync"

// State owns the per-vertex bitsets and per-process counters that placement
// policies read and mutate across the life of an ingress. One State is
// shared by every add_edge call on a process; Place serializes access with
// the State's own mutex, so it may be called from several goroutines.
type State struct {
	mu sync.Mutex

	numProcs      int
	procEdgeCount []uint64

	degree     map[uint64]*BitSet
	trueDegree map[uint64]*uint64
}

// NewState returns placement state for a cluster of numProcs processes.
func NewState(numProcs int) *State {
	return &State{
		numProcs:      numProcs,
		procEdgeCount: make([]uint64, numProcs),
		degree:        make(map[uint64]*BitSet),
		trueDegree:    make(map[uint64]*uint64),
	}
}

// Place builds the Context for (src, dst), invokes the policy under the
// state's mutex, and returns the chosen pid. Holding the mutex across the
// whole decision (not just the bitset lookups) is what makes concurrent
// add_edge calls from multiple worker threads safe, per spec §5.
func (s *State) Place(p Policy, src, dst uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := &Context{
		NumProcs:      s.numProcs,
		SrcDegree:     s.bitsetFor(src),
		DstDegree:     s.bitsetFor(dst),
		ProcEdgeCount: s.procEdgeCount,
		SrcTrueDegree: s.counterFor(src),
		DstTrueDegree: s.counterFor(dst),
	}
	return p.Place(src, dst, ctx)
}

func (s *State) bitsetFor(v uint64) *BitSet {
	b, ok := s.degree[v]
	if !ok {
		b = NewBitSet(s.numProcs)
		s.degree[v] = b
	}
	return b
}

func (s *State) counterFor(v uint64) *uint64 {
	c, ok := s.trueDegree[v]
	if !ok {
		c = new(uint64)
		s.trueDegree[v] = c
	}
	return c
}
