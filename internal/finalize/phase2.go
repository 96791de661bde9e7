package finalize

import (
	"context"
	"sort"

	"github.com/rkhandel/distgraph/internal/exchange"
)

// phase2PrelimGather sends each locally-replicated vid to its preliminary
// master (vid mod P) and, on the preliminary-master side, gathers the
// full mirror set per vid, per spec §4.5 Phase 2.
func (c *Coordinator) phase2PrelimGather(ctx context.Context) (map[uint64][]int, error) {
	rawEx, err := c.tr.NewExchange(ctx)
	if err != nil {
		return nil, err
	}
	ex := exchange.Wrap[exchange.MirrorGather](rawEx)

	n := c.index.Size()
	for lvid := uint32(0); lvid < uint32(n); lvid++ {
		vid := c.index.VidOf(lvid)
		prelim := int(vid % uint64(c.tr.NumProcs()))
		if err := ex.Send(prelim, 0, exchange.MirrorGather{Vid: vid}); err != nil {
			return nil, err
		}
	}
	if err := ex.Flush(ctx); err != nil {
		return nil, err
	}

	mirrorSets := make(map[uint64][]int)
	for {
		senderPid, batch, ok := ex.Recv()
		if !ok {
			break
		}
		for _, rec := range batch {
			mirrorSets[rec.Vid] = append(mirrorSets[rec.Vid], senderPid)
		}
	}
	for vid, mirrors := range mirrorSets {
		sort.Ints(mirrors)
		mirrorSets[vid] = dedupSorted(mirrors)
	}
	return mirrorSets, nil
}

func dedupSorted(xs []int) []int {
	if len(xs) == 0 {
		return xs
	}
	out := xs[:1]
	for _, x := range xs[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}
