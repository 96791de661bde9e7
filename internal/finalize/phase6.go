package finalize

import "context"

// phase6GlobalStats publishes cluster-wide totals via all-reduce, per spec
// §4.5 Phase 6: edge count, distinct vertex count (one contribution per
// elected master), and total replica count (master + mirrors, summed over
// every master in the cluster).
func (c *Coordinator) phase6GlobalStats(ctx context.Context, vertices map[uint64]*VertexMeta) (nEdges, nVertices, nReplicas uint64, err error) {
	var localMasters, localReplicas uint64
	for _, meta := range vertices {
		if meta.IsMaster {
			localMasters++
			localReplicas += uint64(1 + len(meta.Mirrors))
		}
	}

	nEdges, err = c.tr.AllReduceSum(ctx, uint64(c.graph.NumEdges()))
	if err != nil {
		return 0, 0, 0, err
	}
	nVertices, err = c.tr.AllReduceSum(ctx, localMasters)
	if err != nil {
		return 0, 0, 0, err
	}
	nReplicas, err = c.tr.AllReduceSum(ctx, localReplicas)
	if err != nil {
		return 0, 0, 0, err
	}
	return nEdges, nVertices, nReplicas, nil
}
