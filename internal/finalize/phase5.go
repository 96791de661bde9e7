package finalize

import (
	"context"
	"sort"

	"github.com/rkhandel/distgraph/internal/exchange"
)

// phase5SyncMeta gathers each replica's locally-observed degree contribution
// at the elected master and applies the sum, per spec §4.5 Phase 5. The
// master's own contribution additionally carries HasData/Mirrors so the
// gather-apply can run uniformly through the same exchange regardless of
// whether the contributor is the master or a mirror.
func (c *Coordinator) phase5SyncMeta(ctx context.Context, vertices map[uint64]*VertexMeta, _ []PendingVertex) error {
	rawEx, err := c.tr.NewExchange(ctx)
	if err != nil {
		return err
	}
	ex := exchange.Wrap[exchange.MetaContribution](rawEx)

	for vid, meta := range vertices {
		lvid, ok := c.index.Lookup(vid)
		var outDeg, inDeg uint64
		if ok {
			outDeg = uint64(c.graph.OutDegree(lvid))
			inDeg = uint64(c.graph.InDegree(lvid))
		}

		contrib := exchange.MetaContribution{Vid: vid, InDegree: inDeg, OutDegree: outDeg}
		if meta.IsMaster {
			contrib.HasData = true
			contrib.VData = meta.VData
			contrib.Mirrors = meta.Mirrors
		}
		if err := ex.Send(meta.Master, 0, contrib); err != nil {
			return err
		}
	}
	if err := ex.Flush(ctx); err != nil {
		return err
	}

	type accum struct {
		inDeg, outDeg uint64
		vdata         []byte
		mirrors       []int
	}
	accums := make(map[uint64]*accum)
	for {
		_, batch, ok := ex.Recv()
		if !ok {
			break
		}
		for _, rec := range batch {
			a, exists := accums[rec.Vid]
			if !exists {
				a = &accum{}
				accums[rec.Vid] = a
			}
			a.inDeg += rec.InDegree
			a.outDeg += rec.OutDegree
			if rec.HasData {
				a.vdata = rec.VData
				a.mirrors = rec.Mirrors
			}
		}
	}

	for vid, a := range accums {
		meta, ok := vertices[vid]
		if !ok || !meta.IsMaster {
			continue
		}
		meta.InDegree = a.inDeg
		meta.OutDegree = a.outDeg
		meta.VData = a.vdata
		meta.Mirrors = dedupSorted(sortedInts(a.mirrors))
	}
	return nil
}

func sortedInts(xs []int) []int {
	out := append([]int(nil), xs...)
	sort.Ints(out)
	return out
}
