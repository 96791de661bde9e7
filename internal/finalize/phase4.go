package finalize

import "context"

// phase4InstallMasters materializes the VertexMeta record for every vid this
// process now replicates, per spec §4.5 Phase 4. For a vid this process was
// elected master of but never locally ingressed as an edge endpoint, a
// "flying" lvid is allocated here (SPEC_FULL.md §3/open question 4). Whether
// a vid is flying is decided the first time this process ever installs it as
// master and then remembered in c.flying — it must never flip back to false
// on a later Finalize call just because phase1/phase4 have since allocated
// its lvid.
func (c *Coordinator) phase4InstallMasters(_ context.Context, masterOf map[uint64]int, mirrorsOfMaster map[uint64][]int) (map[uint64]*VertexMeta, error) {
	vertices := make(map[uint64]*VertexMeta, len(masterOf)+len(mirrorsOfMaster))

	for vid, mirrors := range mirrorsOfMaster {
		_, alreadyKnown := c.index.Lookup(vid)
		c.index.LvidOf(vid)
		c.graph.GrowVertices(c.index.NextLvid())

		flying, decided := c.flying[vid]
		if !decided {
			flying = !alreadyKnown
			c.flying[vid] = flying
		}

		others := make([]int, 0, len(mirrors))
		for _, m := range mirrors {
			if m != c.tr.Pid() {
				others = append(others, m)
			}
		}
		vertices[vid] = &VertexMeta{
			Vid:      vid,
			Master:   c.tr.Pid(),
			Mirrors:  others,
			VData:    c.masterVertexData[vid],
			IsMaster: true,
			Flying:   flying,
		}
	}

	for vid, master := range masterOf {
		vertices[vid] = &VertexMeta{
			Vid:      vid,
			Master:   master,
			IsMaster: false,
		}
	}

	return vertices, nil
}
