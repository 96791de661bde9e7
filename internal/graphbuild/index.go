package graphbuild

import "sync"

// VidIndex is the per-process vid2lvid mapping of spec §3, assigning each
// unseen global vid the next available dense lvid.
type VidIndex struct {
	mu       sync.Mutex
	vid2lvid map[uint64]uint32
	lvid2vid []uint64
	next     uint32
}

// NewVidIndex returns an index whose lvids start at watermark — the value
// captured at the beginning of finalize, per spec §4.4.
func NewVidIndex(watermark uint32) *VidIndex {
	return &VidIndex{vid2lvid: make(map[uint64]uint32), lvid2vid: make([]uint64, watermark), next: watermark}
}

// Size returns the number of distinct vids indexed so far.
func (idx *VidIndex) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.vid2lvid)
}

// LvidOf returns the lvid for vid, assigning a fresh one if vid is unseen.
func (idx *VidIndex) LvidOf(vid uint64) uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if lv, ok := idx.vid2lvid[vid]; ok {
		return lv
	}
	lv := idx.next
	idx.next++
	idx.vid2lvid[vid] = lv
	idx.lvid2vid = append(idx.lvid2vid, vid)
	return lv
}

// Lookup returns the lvid for vid without assigning one.
func (idx *VidIndex) Lookup(vid uint64) (uint32, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	lv, ok := idx.vid2lvid[vid]
	return lv, ok
}

// VidOf reverses LvidOf.
func (idx *VidIndex) VidOf(lvid uint32) uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.lvid2vid[lvid]
}

// NextLvid returns the lvid that would be assigned to the next unseen vid,
// i.e. the current watermark.
func (idx *VidIndex) NextLvid() uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.next
}
