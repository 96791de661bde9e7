package grpcremote

// Envelope is the single wire message multiplexed over the Collective
// service's Stream method, carrying every collective and exchange operation
// transport.Transport supports. One field set is relevant per Kind; unused
// fields are left zero.
type Envelope struct {
	Kind string // barrier, allreduce, allgather, broadcast, send, flushbarrier, recv
	Pid  int
	Key  string // program-order step key, e.g. "barrier#3" or "<exchange-key>/flush#1"

	Value uint64 // allreduce contribution
	Bytes []byte // allgather/broadcast contribution
	Root  int    // broadcast root pid

	Dst   int      // exchange send destination
	Batch [][]byte // exchange send payloads (request) or delivered batch (response)

	Sum       uint64   // allreduce response
	Gathered  [][]byte // allgather/broadcast response, indexed by pid (broadcast uses index 0)
	SenderPid int      // exchange recv response: who sent Batch
	More      bool     // exchange recv response: false once drained
}
