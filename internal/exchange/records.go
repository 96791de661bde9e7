// Package exchange defines the typed records that flow through the
// buffered, point-to-point routing channel of spec §4.3, and a generic
// wrapper that serializes them over a transport.Exchange.
package exchange

// EdgeRecord is a single globally-identified edge in flight to its owning
// process, per spec §3/§4.4.
type EdgeRecord struct {
	Src   uint64
	Dst   uint64
	EData []byte
}

// VertexRecord is a single vertex payload in flight to the vid's preliminary
// master (vid mod P), per spec §3.
type VertexRecord struct {
	Vid   uint64
	VData []byte
}

// MirrorGather is what every process holding a replica of vid (the
// preliminary master included) sends to vid's preliminary master in Phase 2:
// "I hold a replica of this vid."
type MirrorGather struct {
	Vid uint64
}

// MasterScatter is what the preliminary master sends in Phase 3: to the
// elected master, the full (vid, mirrors) bundle plus any vertex payload it
// gathered during Phase 1; to every mirror, just the elected master's pid.
type MasterScatter struct {
	Vid     uint64
	Master  int
	Mirrors []int  // only populated on the message sent to the elected master
	VData   []byte // only populated on the message sent to the elected master, if a payload was seen
}

// MetaContribution is what every replica contributes in Phase 5's
// gather-apply, per spec §4.5.
type MetaContribution struct {
	Vid       uint64
	InDegree  uint64
	OutDegree uint64
	HasData   bool // set only by the master's own contribution
	VData     []byte
	Mirrors   []int // set only by the master's own contribution
}
