package finalize

import (
	"context"
	"fmt"

	"github.com/rkhandel/distgraph/internal/exchange"
)

// phase3CentroidScatter elects, for each vid this process holds as
// preliminary master, the real master via centroid selection, then scatters
// the decision: the elected master receives (vid, full mirror set), every
// other mirror receives (vid, elected master pid), per spec §4.5 Phase 3 /
// §4.6.
//
// It returns masterOf (vids this process learned it mirrors, mapped to their
// master pid) and mirrorsOfMaster (vids this process was elected master of,
// mapped to their full mirror set).
func (c *Coordinator) phase3CentroidScatter(ctx context.Context, mirrorSets map[uint64][]int) (map[uint64]int, map[uint64][]int, error) {
	rawEx, err := c.tr.NewExchange(ctx)
	if err != nil {
		return nil, nil, err
	}
	ex := exchange.Wrap[exchange.MasterScatter](rawEx)

	for vid, mirrors := range mirrorSets {
		master, err := c.selector.Centroid(mirrors)
		if err != nil {
			return nil, nil, fmt.Errorf("centroid election for vid %d: %w", vid, err)
		}

		msg := exchange.MasterScatter{Vid: vid, Master: master, Mirrors: mirrors}
		if vdata, ok := c.incomingVertexData[vid]; ok {
			msg.VData = vdata
		}
		if err := ex.Send(master, 0, msg); err != nil {
			return nil, nil, err
		}
		for _, m := range mirrors {
			if m == master {
				continue
			}
			if err := ex.Send(m, 0, exchange.MasterScatter{Vid: vid, Master: master}); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := ex.Flush(ctx); err != nil {
		return nil, nil, err
	}

	masterOf := make(map[uint64]int)
	mirrorsOfMaster := make(map[uint64][]int)
	c.masterVertexData = make(map[uint64][]byte)
	for {
		_, batch, ok := ex.Recv()
		if !ok {
			break
		}
		for _, rec := range batch {
			if rec.Mirrors != nil {
				mirrorsOfMaster[rec.Vid] = rec.Mirrors
				if rec.VData != nil {
					c.masterVertexData[rec.Vid] = rec.VData
				}
			} else {
				masterOf[rec.Vid] = rec.Master
			}
		}
	}
	return masterOf, mirrorsOfMaster, nil
}
