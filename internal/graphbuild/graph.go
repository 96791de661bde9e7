// Package graphbuild converts globally-identified edges into a local,
// CSR-style adjacency structure indexed by dense per-process vertex ids
// (lvid), per spec §4.4.
package graphbuild

import "sort"

// StagingEdge is one edge already translated into local vertex ids, waiting
// to be indexed by FinalizeLocal.
type StagingEdge struct {
	SrcLvid uint32
	DstLvid uint32
	EData   []byte
}

// Graph is the process-local edge set, addressable by (lvid_src, lvid_dst)
// once FinalizeLocal has run, per spec §3's local_graph.
type Graph struct {
	numVertices uint32
	staging     []StagingEdge

	finalized  bool
	csrOffsets []uint32 // len == numVertices+1, indexed by src lvid
	csrEdges   []StagingEdge
}

// NewGraph returns an empty local graph expecting numVertices distinct
// lvids in [0, numVertices).
func NewGraph(numVertices uint32) *Graph {
	return &Graph{numVertices: numVertices}
}

// NumVertices returns the number of distinct lvids this graph was built
// over.
func (g *Graph) NumVertices() uint32 { return g.numVertices }

// GrowVertices extends the graph to cover newTotal lvids, used when Phase 4
// master installation allocates "flying" lvids for masters that were not
// locally known during edge ingest, per spec §4.5.
func (g *Graph) GrowVertices(newTotal uint32) {
	if newTotal > g.numVertices {
		g.numVertices = newTotal
	}
}

// AddEdge appends a local edge to the staging list. It takes no lock and is
// not safe for concurrent use; callers serialize calls (Phase 1 drains edge
// batches on a single goroutine).
func (g *Graph) AddEdge(srcLvid, dstLvid uint32, edata []byte) {
	g.staging = append(g.staging, StagingEdge{SrcLvid: srcLvid, DstLvid: dstLvid, EData: edata})
}

// NumEdges returns the number of edges staged (before or after finalize).
func (g *Graph) NumEdges() int {
	if g.finalized {
		return len(g.csrEdges)
	}
	return len(g.staging)
}

// FinalizeLocal sorts and indexes the staged edges into CSR-style adjacency,
// per spec §4.4's post-condition. Idempotent: calling it again after more
// edges were staged re-sorts everything, which is what incremental finalize
// needs.
func (g *Graph) FinalizeLocal() {
	edges := append([]StagingEdge(nil), g.staging...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SrcLvid != edges[j].SrcLvid {
			return edges[i].SrcLvid < edges[j].SrcLvid
		}
		return edges[i].DstLvid < edges[j].DstLvid
	})

	offsets := make([]uint32, g.numVertices+1)
	for _, e := range edges {
		offsets[e.SrcLvid+1]++
	}
	for i := 1; i < len(offsets); i++ {
		offsets[i] += offsets[i-1]
	}

	g.csrOffsets = offsets
	g.csrEdges = edges
	g.finalized = true
}

// OutEdges returns the (sorted) out-edges of lvid after FinalizeLocal.
func (g *Graph) OutEdges(lvid uint32) []StagingEdge {
	if !g.finalized || lvid+1 >= uint32(len(g.csrOffsets)) {
		return nil
	}
	return g.csrEdges[g.csrOffsets[lvid]:g.csrOffsets[lvid+1]]
}

// OutDegree returns len(OutEdges(lvid)) without slicing.
func (g *Graph) OutDegree(lvid uint32) int {
	if !g.finalized || lvid+1 >= uint32(len(g.csrOffsets)) {
		return 0
	}
	return int(g.csrOffsets[lvid+1] - g.csrOffsets[lvid])
}

// InDegree counts edges whose destination is lvid by scanning every local
// edge on each call; no per-vertex in-degree is tracked. Phase 5 of finalize
// uses it for each replica's degree contribution.
func (g *Graph) InDegree(lvid uint32) int {
	n := 0
	edges := g.staging
	if g.finalized {
		edges = g.csrEdges
	}
	for _, e := range edges {
		if e.DstLvid == lvid {
			n++
		}
	}
	return n
}
