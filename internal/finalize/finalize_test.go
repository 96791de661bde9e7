package finalize

import (
	"context"
	"sync"
	"testing"

	"github.com/rkhandel/distgraph/internal/graphbuild"
	"github.com/rkhandel/distgraph/internal/partition"
	"github.com/rkhandel/distgraph/internal/topology"
	"github.com/rkhandel/distgraph/internal/transport/local"
)

// buildCluster returns one Coordinator (and supporting index/graph) per pid,
// sharing a single topology table and local transport.Cluster.
func buildCluster(t *testing.T, numProcs int) ([]*Coordinator, []*graphbuild.VidIndex, []*graphbuild.Graph) {
	t.Helper()
	table, err := topology.NewTable(nil, numProcs, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		t.Fatalf("new topology table: %v", err)
	}
	selector := NewCentroidSelector(table)
	cluster := local.NewCluster(numProcs)

	coords := make([]*Coordinator, numProcs)
	indexes := make([]*graphbuild.VidIndex, numProcs)
	graphs := make([]*graphbuild.Graph, numProcs)
	for pid := 0; pid < numProcs; pid++ {
		idx := graphbuild.NewVidIndex(0)
		g := graphbuild.NewGraph(0)
		indexes[pid] = idx
		graphs[pid] = g
		coords[pid] = NewCoordinator(cluster.Transport(pid), selector, idx, g, nil)
	}
	return coords, indexes, graphs
}

// runFinalize drives Finalize concurrently across every process, given a
// per-pid slice of already-placed edges.
func runFinalize(t *testing.T, coords []*Coordinator, edgesByPid [][]PendingEdge) []*Result {
	t.Helper()
	results := make([]*Result, len(coords))
	errs := make([]error, len(coords))
	var wg sync.WaitGroup
	for pid := range coords {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			results[pid], errs[pid] = coords[pid].Finalize(context.Background(), edgesByPid[pid], nil)
		}(pid)
	}
	wg.Wait()
	for pid, err := range errs {
		if err != nil {
			t.Fatalf("finalize on pid %d: %v", pid, err)
		}
	}
	return results
}

// placeTriangle places the S1 triangle (1,2),(2,3),(3,1) with the random
// policy across 3 processes, one State shared across all "ingest" calls,
// simulating the single step before Finalize.
func placeTriangle(numProcs int) [][]PendingEdge {
	state := partition.NewState(numProcs)
	policy := partition.NewRandom()
	edges := [][2]uint64{{1, 2}, {2, 3}, {3, 1}}

	out := make([][]PendingEdge, numProcs)
	for _, e := range edges {
		owner := state.Place(policy, e[0], e[1])
		out[owner] = append(out[owner], PendingEdge{Src: e[0], Dst: e[1], OwnerPid: owner})
	}
	return out
}

func TestFinalizeTriangleGlobalStatsAgreeAcrossProcesses(t *testing.T) {
	const numProcs = 3
	coords, _, _ := buildCluster(t, numProcs)
	edgesByPid := placeTriangle(numProcs)

	results := runFinalize(t, coords, edgesByPid)

	for pid, r := range results {
		if r.NumEdgesGlobal != 3 {
			t.Fatalf("pid %d: expected 3 global edges, got %d", pid, r.NumEdgesGlobal)
		}
		if r.NumVerticesGlobal != 3 {
			t.Fatalf("pid %d: expected 3 global vertices, got %d", pid, r.NumVerticesGlobal)
		}
	}
}

func TestFinalizeEveryVertexHasExactlyOneMaster(t *testing.T) {
	const numProcs = 3
	coords, _, _ := buildCluster(t, numProcs)
	edgesByPid := placeTriangle(numProcs)

	results := runFinalize(t, coords, edgesByPid)

	masterCount := make(map[uint64]int)
	for _, r := range results {
		for vid, meta := range r.Vertices {
			if meta.IsMaster {
				masterCount[vid]++
			}
		}
	}
	for _, vid := range []uint64{1, 2, 3} {
		if masterCount[vid] != 1 {
			t.Fatalf("vid %d: expected exactly one master across the cluster, got %d", vid, masterCount[vid])
		}
	}
}

func TestFinalizeMasterNeverInOwnMirrorList(t *testing.T) {
	const numProcs = 3
	coords, _, _ := buildCluster(t, numProcs)
	edgesByPid := placeTriangle(numProcs)

	results := runFinalize(t, coords, edgesByPid)

	for pid, r := range results {
		for vid, meta := range r.Vertices {
			if !meta.IsMaster {
				continue
			}
			for _, m := range meta.Mirrors {
				if m == pid {
					t.Fatalf("pid %d: vid %d lists its own master pid in Mirrors", pid, vid)
				}
			}
		}
	}
}

func TestFinalizeTotalDegreeMatchesEdgeCount(t *testing.T) {
	const numProcs = 3
	coords, _, _ := buildCluster(t, numProcs)
	edgesByPid := placeTriangle(numProcs)

	results := runFinalize(t, coords, edgesByPid)

	var totalOut, totalIn uint64
	for _, r := range results {
		for _, meta := range r.Vertices {
			if meta.IsMaster {
				totalOut += meta.OutDegree
				totalIn += meta.InDegree
			}
		}
	}
	if totalOut != 3 {
		t.Fatalf("expected total out-degree 3 across masters, got %d", totalOut)
	}
	if totalIn != 3 {
		t.Fatalf("expected total in-degree 3 across masters, got %d", totalIn)
	}
}

func TestFinalizeDuplicateVertexPayloadUsesCombiner(t *testing.T) {
	const numProcs = 2
	table, err := topology.NewTable(nil, numProcs, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		t.Fatalf("new topology table: %v", err)
	}
	selector := NewCentroidSelector(table)
	cluster := local.NewCluster(numProcs)

	sumCombiner := func(existing, incoming []byte) []byte {
		return []byte{existing[0] + incoming[0]}
	}

	coords := make([]*Coordinator, numProcs)
	for pid := 0; pid < numProcs; pid++ {
		idx := graphbuild.NewVidIndex(0)
		g := graphbuild.NewGraph(0)
		coords[pid] = NewCoordinator(cluster.Transport(pid), selector, idx, g, sumCombiner)
	}

	// Both processes contribute a payload for the same vid (7); vid%2==1
	// so both route to pid 1, where the combiner must run.
	pendingVerts := [][]PendingVertex{
		{{Vid: 7, VData: []byte{3}}},
		{{Vid: 7, VData: []byte{4}}},
	}
	edgesByPid := make([][]PendingEdge, numProcs)

	results := make([]*Result, numProcs)
	errs := make([]error, numProcs)
	var wg sync.WaitGroup
	for pid := 0; pid < numProcs; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			results[pid], errs[pid] = coords[pid].Finalize(context.Background(), edgesByPid[pid], pendingVerts[pid])
		}(pid)
	}
	wg.Wait()
	for pid, err := range errs {
		if err != nil {
			t.Fatalf("finalize on pid %d: %v", pid, err)
		}
	}

	var found bool
	for _, r := range results {
		meta, ok := r.Vertices[7]
		if !ok || !meta.IsMaster {
			continue
		}
		found = true
		if len(meta.VData) != 1 || meta.VData[0] != 7 {
			t.Fatalf("expected combined payload [7], got %v", meta.VData)
		}
	}
	if !found {
		t.Fatalf("expected some process to be elected master of vid 7")
	}
}

func TestFinalizeSecondCallWithNoNewDataPreservesVertexData(t *testing.T) {
	const numProcs = 2
	table, err := topology.NewTable(nil, numProcs, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		t.Fatalf("new topology table: %v", err)
	}
	selector := NewCentroidSelector(table)
	cluster := local.NewCluster(numProcs)

	coords := make([]*Coordinator, numProcs)
	for pid := 0; pid < numProcs; pid++ {
		idx := graphbuild.NewVidIndex(0)
		g := graphbuild.NewGraph(0)
		coords[pid] = NewCoordinator(cluster.Transport(pid), selector, idx, g, nil)
	}

	// vid 7 % 2 == 1, so the payload routes to pid 1's preliminary master.
	pendingVerts := [][]PendingVertex{nil, {{Vid: 7, VData: []byte{42}}}}
	empty := make([][]PendingEdge, numProcs)

	first := runFinalizeWithVertices(t, coords, empty, pendingVerts)
	firstVData, firstFlying := findMaster(t, first, 7)
	if len(firstVData) != 1 || firstVData[0] != 42 {
		t.Fatalf("first finalize: expected vdata [42], got %v", firstVData)
	}

	// Second call: no new edges or vertices anywhere. A correct incremental
	// finalize must leave vid 7's vdata and Flying flag bit-identical.
	second := runFinalizeWithVertices(t, coords, empty, make([][]PendingVertex, numProcs))
	secondVData, secondFlying := findMaster(t, second, 7)
	if len(secondVData) != 1 || secondVData[0] != 42 {
		t.Fatalf("second finalize: expected vdata to persist as [42], got %v (vdata was lost across the no-op call)", secondVData)
	}
	if secondFlying != firstFlying {
		t.Fatalf("second finalize: Flying flipped from %v to %v across a no-op call", firstFlying, secondFlying)
	}
}

func runFinalizeWithVertices(t *testing.T, coords []*Coordinator, edgesByPid [][]PendingEdge, vertsByPid [][]PendingVertex) []*Result {
	t.Helper()
	results := make([]*Result, len(coords))
	errs := make([]error, len(coords))
	var wg sync.WaitGroup
	for pid := range coords {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			results[pid], errs[pid] = coords[pid].Finalize(context.Background(), edgesByPid[pid], vertsByPid[pid])
		}(pid)
	}
	wg.Wait()
	for pid, err := range errs {
		if err != nil {
			t.Fatalf("finalize on pid %d: %v", pid, err)
		}
	}
	return results
}

func findMaster(t *testing.T, results []*Result, vid uint64) ([]byte, bool) {
	t.Helper()
	for _, r := range results {
		if meta, ok := r.Vertices[vid]; ok && meta.IsMaster {
			return meta.VData, meta.Flying
		}
	}
	t.Fatalf("expected some process to be elected master of vid %d", vid)
	return nil, false
}

func TestPhase4InstallMastersFlyingDecidedOnceAndRemembered(t *testing.T) {
	table, err := topology.NewTable(nil, 3, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		t.Fatalf("new topology table: %v", err)
	}
	selector := NewCentroidSelector(table)
	cluster := local.NewCluster(3)
	idx := graphbuild.NewVidIndex(0)
	g := graphbuild.NewGraph(0)
	c := NewCoordinator(cluster.Transport(0), selector, idx, g, nil)

	mirrorsOfMaster := map[uint64][]int{42: {1, 2}}

	first, err := c.phase4InstallMasters(context.Background(), nil, mirrorsOfMaster)
	if err != nil {
		t.Fatalf("phase4 (first call): %v", err)
	}
	if !first[42].Flying {
		t.Fatalf("expected vid 42 to be flying on first install (never locally known before)")
	}

	// Simulate the same vid being re-installed on a second Finalize call: by
	// now c.index already has an lvid for 42 (allocated by the first call),
	// so a naive recomputation of "already known" would wrongly report
	// Flying=false here.
	second, err := c.phase4InstallMasters(context.Background(), nil, mirrorsOfMaster)
	if err != nil {
		t.Fatalf("phase4 (second call): %v", err)
	}
	if !second[42].Flying {
		t.Fatalf("expected vid 42 to remain flying on a later install call, got Flying=false")
	}
}

func TestFinalizeNoOpOnEmptyPending(t *testing.T) {
	const numProcs = 2
	coords, _, _ := buildCluster(t, numProcs)
	empty := make([][]PendingEdge, numProcs)

	results := runFinalize(t, coords, empty)

	for pid, r := range results {
		if r.NumEdgesGlobal != 0 || r.NumVerticesGlobal != 0 || r.NumReplicasGlobal != 0 {
			t.Fatalf("pid %d: expected all-zero stats on empty finalize, got %+v", pid, r)
		}
	}
}
