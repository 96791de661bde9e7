package distgraph

import (
	"context"
	"sync"
	"testing"

	"github.com/rkhandel/distgraph/internal/partition"
	"github.com/rkhandel/distgraph/internal/topology"
	"github.com/rkhandel/distgraph/internal/transport/local"
)

func TestIngressTriangleWithStringPayloads(t *testing.T) {
	const numProcs = 3
	table, err := topology.NewTable(nil, numProcs, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		t.Fatalf("new topology table: %v", err)
	}
	cluster := local.NewCluster(numProcs)

	ingresses := make([]*Ingress[string, float64], numProcs)
	for pid := 0; pid < numProcs; pid++ {
		ingresses[pid] = New[string, float64](cluster.Transport(pid), table, partition.NewRandom())
	}

	edges := [][2]uint64{{1, 2}, {2, 3}, {3, 1}}
	for _, e := range edges {
		if err := ingresses[0].AddEdge(e[0], e[1], 1.5); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}
	if err := ingresses[1].AddVertex(1, "alice"); err != nil {
		t.Fatalf("add vertex: %v", err)
	}

	results := make([]*Result[string], numProcs)
	errs := make([]error, numProcs)
	var wg sync.WaitGroup
	for pid := 0; pid < numProcs; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			results[pid], errs[pid] = ingresses[pid].Finalize(context.Background())
		}(pid)
	}
	wg.Wait()
	for pid, err := range errs {
		if err != nil {
			t.Fatalf("finalize on pid %d: %v", pid, err)
		}
	}

	for pid, r := range results {
		if r.NumEdgesGlobal != 3 {
			t.Fatalf("pid %d: expected 3 global edges, got %d", pid, r.NumEdgesGlobal)
		}
		if r.NumVerticesGlobal != 3 {
			t.Fatalf("pid %d: expected 3 global vertices, got %d", pid, r.NumVerticesGlobal)
		}
	}

	var sawAlice bool
	for _, r := range results {
		if v, ok := r.Vertices[1]; ok && v.IsMaster {
			if v.Data != "alice" {
				t.Fatalf("expected vertex 1's master data to be 'alice', got %q", v.Data)
			}
			sawAlice = true
		}
	}
	if !sawAlice {
		t.Fatalf("expected vertex 1's master to carry the 'alice' payload")
	}
}

func TestIngressSetDuplicateVertexStrategyCombinesPayloads(t *testing.T) {
	const numProcs = 2
	table, err := topology.NewTable(nil, numProcs, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		t.Fatalf("new topology table: %v", err)
	}
	cluster := local.NewCluster(numProcs)

	ingresses := make([]*Ingress[int, int], numProcs)
	for pid := 0; pid < numProcs; pid++ {
		ingresses[pid] = New[int, int](cluster.Transport(pid), table, partition.NewRandom())
		ingresses[pid].SetDuplicateVertexStrategy(func(existing, incoming int) int {
			return existing + incoming
		})
	}

	// vid 7 % 2 == 1, so both payloads route to pid 1 for combining.
	if err := ingresses[0].AddVertex(7, 3); err != nil {
		t.Fatalf("add vertex: %v", err)
	}
	if err := ingresses[1].AddVertex(7, 4); err != nil {
		t.Fatalf("add vertex: %v", err)
	}

	results := make([]*Result[int], numProcs)
	errs := make([]error, numProcs)
	var wg sync.WaitGroup
	for pid := 0; pid < numProcs; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			results[pid], errs[pid] = ingresses[pid].Finalize(context.Background())
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
		if v, ok := r.Vertices[7]; ok && v.IsMaster {
			found = true
			if v.Data != 7 {
				t.Fatalf("expected combined payload 7, got %d", v.Data)
			}
		}
	}
	if !found {
		t.Fatalf("expected some process to be elected master of vid 7")
	}
}
