// Package distgraph is a distributed graph ingestion and partitioning
// library: callers stream edges and vertices into an Ingress from any number
// of local loader goroutines, and a collective Finalize call partitions
// edges across the cluster, replicates vertices, and elects masters.
package distgraph

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/rkhandel/distgraph/internal/finalize"
	"github.com/rkhandel/distgraph/internal/graphbuild"
	"github.com/rkhandel/distgraph/internal/partition"
	"github.com/rkhandel/distgraph/internal/topology"
	"github.com/rkhandel/distgraph/internal/transport"
)

// Vertex is the finalized, caller-facing view of one vertex replica held by
// this process, satisfying spec §3's replica-record invariants.
type Vertex[V any] struct {
	Vid       uint64
	Master    int
	Mirrors   []int
	InDegree  uint64
	OutDegree uint64
	Data      V
	IsMaster  bool
	Flying    bool
}

// Result is the outcome of a collective Finalize call.
type Result[V any] struct {
	Graph    *graphbuild.Graph
	Vertices map[uint64]*Vertex[V]

	NumEdgesGlobal    uint64
	NumVerticesGlobal uint64
	NumReplicasGlobal uint64
}

// Ingress is the generic, per-process streaming ingestion point: V is the
// vertex payload type, E the edge payload type.
type Ingress[V any, E any] struct {
	tr     transport.Transport
	policy partition.Policy
	state  *partition.State
	coord  *finalize.Coordinator

	mu           sync.Mutex
	pendingEdges []finalize.PendingEdge
	pendingVerts []finalize.PendingVertex
}

// New builds an Ingress over the given transport and topology table, using
// policy to place edges. The topology table also drives master election
// (spec §4.6); pass a table built with all-zero coordinates for a
// non-topology-aware deployment.
func New[V any, E any](tr transport.Transport, table *topology.Table, policy partition.Policy) *Ingress[V, E] {
	selector := finalize.NewCentroidSelector(table)
	index := graphbuild.NewVidIndex(0)
	graph := graphbuild.NewGraph(0)
	return &Ingress[V, E]{
		tr:     tr,
		policy: policy,
		state:  partition.NewState(tr.NumProcs()),
		coord:  finalize.NewCoordinator(tr, selector, index, graph, finalize.OverwriteCombiner),
	}
}

// SetDuplicateVertexStrategy installs fn as the combiner applied when more
// than one replica contributes a payload for the same vid, per spec §6.
// The default overwrites with the most recently observed payload.
func (g *Ingress[V, E]) SetDuplicateVertexStrategy(fn func(existing, incoming V) V) {
	g.coord.SetCombiner(func(existingBytes, incomingBytes []byte) []byte {
		var existing, incoming V
		if err := decodeGob(existingBytes, &existing); err != nil {
			panic(fmt.Sprintf("distgraph: corrupt existing vertex payload: %v", err))
		}
		if err := decodeGob(incomingBytes, &incoming); err != nil {
			panic(fmt.Sprintf("distgraph: corrupt incoming vertex payload: %v", err))
		}
		merged := fn(existing, incoming)
		out, err := encodeGob(merged)
		if err != nil {
			panic(fmt.Sprintf("distgraph: failed to re-encode combined vertex payload: %v", err))
		}
		return out
	})
}

// AddEdge streams one directed edge in. Non-blocking: placement is a purely
// local decision (spec §4.2) and the edge is buffered until Finalize.
func (g *Ingress[V, E]) AddEdge(src, dst uint64, edata E) error {
	buf, err := encodeGob(edata)
	if err != nil {
		return fmt.Errorf("distgraph: encode edge payload: %w", err)
	}
	owner := g.state.Place(g.policy, src, dst)

	g.mu.Lock()
	g.pendingEdges = append(g.pendingEdges, finalize.PendingEdge{Src: src, Dst: dst, EData: buf, OwnerPid: owner})
	g.mu.Unlock()
	return nil
}

// AddVertex streams one vertex payload in. Non-blocking.
func (g *Ingress[V, E]) AddVertex(vid uint64, vdata V) error {
	buf, err := encodeGob(vdata)
	if err != nil {
		return fmt.Errorf("distgraph: encode vertex payload: %w", err)
	}

	g.mu.Lock()
	g.pendingVerts = append(g.pendingVerts, finalize.PendingVertex{Vid: vid, VData: buf})
	g.mu.Unlock()
	return nil
}

// Finalize runs the collective six-phase protocol of spec §4.5 and returns
// this process's view of the finalized, replicated graph. Every process in
// the cluster must call Finalize; it blocks until the whole cluster has.
func (g *Ingress[V, E]) Finalize(ctx context.Context) (*Result[V], error) {
	g.mu.Lock()
	edges := g.pendingEdges
	verts := g.pendingVerts
	g.pendingEdges = nil
	g.pendingVerts = nil
	g.mu.Unlock()

	res, err := g.coord.Finalize(ctx, edges, verts)
	if err != nil {
		return nil, err
	}

	vertices := make(map[uint64]*Vertex[V], len(res.Vertices))
	for vid, meta := range res.Vertices {
		var data V
		if meta.VData != nil {
			if err := decodeGob(meta.VData, &data); err != nil {
				return nil, fmt.Errorf("distgraph: decode vertex payload for vid %d: %w", vid, err)
			}
		}
		vertices[vid] = &Vertex[V]{
			Vid:       meta.Vid,
			Master:    meta.Master,
			Mirrors:   meta.Mirrors,
			InDegree:  meta.InDegree,
			OutDegree: meta.OutDegree,
			Data:      data,
			IsMaster:  meta.IsMaster,
			Flying:    meta.Flying,
		}
	}

	return &Result[V]{
		Graph:             res.Graph,
		Vertices:          vertices,
		NumEdgesGlobal:    res.NumEdgesGlobal,
		NumVerticesGlobal: res.NumVerticesGlobal,
		NumReplicasGlobal: res.NumReplicasGlobal,
	}, nil
}

func encodeGob[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob[T any](b []byte, out *T) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(out)
}
