package partition

import (
	"testing"

	"github.com/rkhandel/distgraph/internal/topology"
)

func TestRandomDeterministicAndSymmetric(t *testing.T) {
	state := NewState(4)
	p := NewRandom()

	a := state.Place(p, 1, 2)
	b := state.Place(p, 1, 2)
	if a != b {
		t.Fatalf("random policy not deterministic: got %d then %d", a, b)
	}

	state2 := NewState(4)
	c := state2.Place(p, 2, 1)
	if a != c {
		t.Fatalf("random policy not symmetric: place(1,2)=%d place(2,1)=%d", a, c)
	}
}

func TestRandomInRange(t *testing.T) {
	state := NewState(4)
	p := NewRandom()
	for i := uint64(0); i < 200; i++ {
		pid := state.Place(p, i, i+1)
		if pid < 0 || pid >= 4 {
			t.Fatalf("random policy returned out-of-range pid %d", pid)
		}
	}
}

func TestGreedyNeverBelowMaxThreshold(t *testing.T) {
	state := NewState(4)
	p := NewGreedy(Options{})

	for i := uint64(0); i < 50; i++ {
		state.mu.Lock()
		ctx := &Context{
			NumProcs:      state.numProcs,
			SrcDegree:     state.bitsetFor(i),
			DstDegree:     state.bitsetFor(i + 1),
			ProcEdgeCount: state.procEdgeCount,
			SrcTrueDegree: state.counterFor(i),
			DstTrueDegree: state.counterFor(i + 1),
		}
		scores := greedyScores(i, i+1, ctx, Options{})
		state.mu.Unlock()

		pid := state.Place(p, i, i+1)

		maxScore := scores[0]
		for _, s := range scores[1:] {
			if s > maxScore {
				maxScore = s
			}
		}
		if scores[pid] < maxScore-degreeThreshold {
			t.Fatalf("greedy chose pid %d with score %f, max is %f", pid, scores[pid], maxScore)
		}
	}
}

func TestGreedyBalancesEdgeCountsForStarGraph(t *testing.T) {
	state := NewState(4)
	p := NewGreedy(Options{})

	counts := make(map[int]int)
	for k := uint64(1); k <= 100; k++ {
		pid := state.Place(p, 0, k)
		counts[pid]++
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 100 {
		t.Fatalf("expected 100 placed edges, got %d", total)
	}
	avg := 25
	for pid, c := range counts {
		if c < avg-5 || c > avg+5 {
			t.Fatalf("proc %d got %d edges, expected near-balanced ~%d", pid, c, avg)
		}
	}
}

func TestHDRFIncrementsTrueDegree(t *testing.T) {
	state := NewState(4)
	p := NewHDRF(Options{})

	pid := state.Place(p, 10, 20)
	if pid < 0 || pid >= 4 {
		t.Fatalf("hdrf returned out-of-range pid %d", pid)
	}

	if *state.counterFor(10) != 1 {
		t.Fatalf("expected src true-degree 1 after one placement, got %d", *state.counterFor(10))
	}
	if *state.counterFor(20) != 1 {
		t.Fatalf("expected dst true-degree 1 after one placement, got %d", *state.counterFor(20))
	}
	if !state.bitsetFor(10).Get(pid) {
		t.Fatalf("expected src degree bit set on chosen pid %d", pid)
	}
	if !state.bitsetFor(20).Get(pid) {
		t.Fatalf("expected dst degree bit set on chosen pid %d", pid)
	}
}

func TestTopologyScorerDeterministic(t *testing.T) {
	coords := []topology.Coord{{0, 0, 0}, {0, 0, 1}, {0, 1, 0}, {1, 0, 0}}
	table, err := topology.NewTable(coords, 4, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	scorer := NewTopologyScorer(table)

	first := scorer.score(0, 1, 2)
	for i := 0; i < 1000; i++ {
		if got := scorer.score(0, 1, 2); got != first {
			t.Fatalf("topology scorer not memoized/deterministic: got %f want %f", got, first)
		}
	}
}

func TestBitSetSetClearCount(t *testing.T) {
	b := NewBitSet(130)
	b.Set(0)
	b.Set(64)
	b.Set(129)
	if b.Count() != 3 {
		t.Fatalf("expected 3 bits set, got %d", b.Count())
	}
	b.Clear(64)
	if b.Get(64) {
		t.Fatalf("expected bit 64 cleared")
	}
	if b.Count() != 2 {
		t.Fatalf("expected 2 bits set after clear, got %d", b.Count())
	}
}
