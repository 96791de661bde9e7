// Package finalize drives the six-phase finalization protocol of spec §4.5:
// every process's locally-staged edges and vertex payloads are turned into a
// local CSR graph, masters are elected by torus-coordinate centroid, mirror
// sets are installed, and per-vertex metadata (degree, replica set, payload)
// is synchronized across every replica.
package finalize

import (
	"context"
	"fmt"

	"github.com/rkhandel/distgraph/internal/exchange"
	"github.com/rkhandel/distgraph/internal/graphbuild"
	"github.com/rkhandel/distgraph/internal/transport"
)

// Combiner resolves a duplicate vertex payload seen more than once across a
// vid's replicas, per spec §3/§6's duplicate-vertex strategy.
type Combiner func(existing, incoming []byte) []byte

// OverwriteCombiner always takes the latest payload, the default per
// SPEC_FULL.md §6.
func OverwriteCombiner(_, incoming []byte) []byte { return incoming }

// PendingEdge is one edge already assigned to a placement pid but not yet
// drained into the local graph, per spec §4.3/§4.4.
type PendingEdge struct {
	Src, Dst uint64
	EData    []byte
	OwnerPid int
}

// PendingVertex is one vertex payload not yet drained, per spec §4.3/§4.4.
type PendingVertex struct {
	Vid   uint64
	VData []byte
}

// VertexMeta is the finalized per-vertex record synchronized in Phase 5,
// satisfying spec §3's replica-record invariants (1, 2, 5).
type VertexMeta struct {
	Vid       uint64
	Master    int
	Mirrors   []int // sorted, excludes Master (invariant 2)
	InDegree  uint64
	OutDegree uint64
	VData     []byte
	IsMaster  bool
	Flying    bool // installed only in Phase 4, never locally ingressed
}

// Result is the outcome of one process's Finalize call.
type Result struct {
	Graph    *graphbuild.Graph
	Index    *graphbuild.VidIndex
	Vertices map[uint64]*VertexMeta // keyed by vid, only vids this process replicates

	NumEdgesGlobal    uint64
	NumVerticesGlobal uint64
	NumReplicasGlobal uint64
}

// Coordinator runs the finalize protocol for one process.
type Coordinator struct {
	tr       transport.Transport
	selector *CentroidSelector
	combine  Combiner

	index *graphbuild.VidIndex
	graph *graphbuild.Graph

	// incomingVertexData holds vertex payloads routed to this process
	// (keyed by global vid) by Phase 1's vertex-record drain, consumed in
	// Phase 3 when this process acts as preliminary master for a vid.
	incomingVertexData map[uint64][]byte

	// masterVertexData holds the vertex payload forwarded by the
	// preliminary master in Phase 3, for vids this process was elected
	// master of. Consumed in Phase 4.
	masterVertexData map[uint64][]byte

	// flying remembers, per vid this process has ever installed as master
	// in Phase 4, whether that installation happened without the vid ever
	// being locally known beforehand (SPEC_FULL.md §3). Decided once and
	// never recomputed, so a vid doesn't silently stop being "flying" on
	// the next Finalize call just because its lvid is now allocated.
	flying map[uint64]bool

	// vertexState is this process's persisted view of every VertexMeta it
	// produced on the previous Finalize call, carried forward so a call
	// with no fresh vertex payload doesn't erase a vid's vdata (spec
	// §4.5's incremental finalize, testable property 7).
	vertexState map[uint64]*VertexMeta
}

// NewCoordinator builds a finalize coordinator. index/graph are the process's
// running vid2lvid map and local graph, built up incrementally during
// ingest (spec §4.4); combine resolves duplicate vertex payloads, defaulting
// to OverwriteCombiner when nil.
func NewCoordinator(tr transport.Transport, selector *CentroidSelector, index *graphbuild.VidIndex, graph *graphbuild.Graph, combine Combiner) *Coordinator {
	if combine == nil {
		combine = OverwriteCombiner
	}
	return &Coordinator{tr: tr, selector: selector, combine: combine, index: index, graph: graph, flying: make(map[uint64]bool)}
}

// SetCombiner replaces the duplicate-vertex-payload combiner, falling back to
// OverwriteCombiner when fn is nil. Safe to call between Finalize calls.
func (c *Coordinator) SetCombiner(fn Combiner) {
	if fn == nil {
		fn = OverwriteCombiner
	}
	c.combine = fn
}

// Finalize drains pendingEdges/pendingVertices (already placed by the caller's
// partition.Policy) through the six phases and returns the synchronized
// per-vertex state this process now replicates.
func (c *Coordinator) Finalize(ctx context.Context, pendingEdges []PendingEdge, pendingVertices []PendingVertex) (*Result, error) {
	if err := c.phase0Quiescence(ctx, pendingEdges, pendingVertices); err != nil {
		return nil, fmt.Errorf("finalize: phase 0: %w", err)
	}

	if err := c.phase1LocalGraph(ctx, pendingEdges, pendingVertices); err != nil {
		return nil, fmt.Errorf("finalize: phase 1: %w", err)
	}
	c.graph.FinalizeLocal()

	mirrorSets, err := c.phase2PrelimGather(ctx)
	if err != nil {
		return nil, fmt.Errorf("finalize: phase 2: %w", err)
	}

	masterOf, mirrorsOfMaster, err := c.phase3CentroidScatter(ctx, mirrorSets)
	if err != nil {
		return nil, fmt.Errorf("finalize: phase 3: %w", err)
	}

	vertices, err := c.phase4InstallMasters(ctx, masterOf, mirrorsOfMaster)
	if err != nil {
		return nil, fmt.Errorf("finalize: phase 4: %w", err)
	}
	c.restorePersistedVData(vertices)

	if err := c.phase5SyncMeta(ctx, vertices, pendingVertices); err != nil {
		return nil, fmt.Errorf("finalize: phase 5: %w", err)
	}

	nEdges, nVerts, nReplicas, err := c.phase6GlobalStats(ctx, vertices)
	if err != nil {
		return nil, fmt.Errorf("finalize: phase 6: %w", err)
	}

	c.vertexState = vertices

	return &Result{
		Graph:             c.graph,
		Index:             c.index,
		Vertices:          vertices,
		NumEdgesGlobal:    nEdges,
		NumVerticesGlobal: nVerts,
		NumReplicasGlobal: nReplicas,
	}, nil
}

// restorePersistedVData carries a master's vdata forward from the previous
// Finalize call when this round gathered no fresh payload for it, so calling
// Finalize twice with no new AddVertex calls leaves vdata bit-identical
// (spec §4.5, testable property 7). masterVertexData/incomingVertexData are
// rebuilt fresh every round by design (they track only what arrived this
// round); vertexState is the one field meant to survive across calls.
func (c *Coordinator) restorePersistedVData(vertices map[uint64]*VertexMeta) {
	for vid, meta := range vertices {
		if !meta.IsMaster || meta.VData != nil {
			continue
		}
		if prev, ok := c.vertexState[vid]; ok && prev.IsMaster {
			meta.VData = prev.VData
		}
	}
}

// phase0Quiescence is spec §4.5 Phase 0: every process all-reduces its
// pending edge and vertex count, then waits at a barrier. The reduced total
// is not inspected: Finalize runs every later phase even when it is zero, and
// such a call recomputes the result from the state already held.
func (c *Coordinator) phase0Quiescence(ctx context.Context, edges []PendingEdge, verts []PendingVertex) error {
	local := uint64(len(edges) + len(verts))
	if _, err := c.tr.AllReduceSum(ctx, local); err != nil {
		return err
	}
	return c.tr.Barrier(ctx)
}

// phase1LocalGraph routes pendingEdges to their owning pid, drains the
// incoming edge exchange into lvids via index, stages them into graph, and
// applies vertex-payload batches through the combiner — the vertex case the
// reference marks unreachable is fully handled here (SPEC_FULL.md open
// question 3).
func (c *Coordinator) phase1LocalGraph(ctx context.Context, edges []PendingEdge, verts []PendingVertex) error {
	rawEdgeEx, err := c.tr.NewExchange(ctx)
	if err != nil {
		return err
	}
	edgeEx := exchange.Wrap[exchange.EdgeRecord](rawEdgeEx)

	for _, e := range edges {
		if err := edgeEx.Send(e.OwnerPid, 0, exchange.EdgeRecord{Src: e.Src, Dst: e.Dst, EData: e.EData}); err != nil {
			return err
		}
	}
	if err := edgeEx.Flush(ctx); err != nil {
		return err
	}
	for {
		_, batch, ok := edgeEx.Recv()
		if !ok {
			break
		}
		for _, rec := range batch {
			srcLvid := c.index.LvidOf(rec.Src)
			dstLvid := c.index.LvidOf(rec.Dst)
			c.graph.GrowVertices(c.index.NextLvid())
			c.graph.AddEdge(srcLvid, dstLvid, rec.EData)
		}
	}

	rawVertEx, err := c.tr.NewExchange(ctx)
	if err != nil {
		return err
	}
	vertEx := exchange.Wrap[exchange.VertexRecord](rawVertEx)

	for _, v := range verts {
		owner := int(v.Vid % uint64(c.tr.NumProcs()))
		if err := vertEx.Send(owner, 0, exchange.VertexRecord{Vid: v.Vid, VData: v.VData}); err != nil {
			return err
		}
	}
	if err := vertEx.Flush(ctx); err != nil {
		return err
	}
	c.incomingVertexData = make(map[uint64][]byte)
	for {
		_, batch, ok := vertEx.Recv()
		if !ok {
			break
		}
		for _, rec := range batch {
			// Registering the vid here even when it has no local edges is
			// what lets a vertex added with AddVertex alone (no incident
			// edge ever ingressed) still surface as a mirror candidate in
			// Phase 2 — see DESIGN.md open question decision 1.
			c.index.LvidOf(rec.Vid)
			c.graph.GrowVertices(c.index.NextLvid())

			if existing, ok := c.incomingVertexData[rec.Vid]; ok {
				c.incomingVertexData[rec.Vid] = c.combine(existing, rec.VData)
			} else {
				c.incomingVertexData[rec.Vid] = rec.VData
			}
		}
	}

	return nil
}
