// Package transport defines the RPC collaborator contract the ingress and
// finalize protocol depend on: barriers, all-reduce, all-gather, broadcast,
// and a typed buffered point-to-point exchange. Per spec §1/§6 the wire byte
// protocol itself is an external collaborator and out of scope; this package
// only fixes the contract two implementations satisfy:
//
//   - internal/transport/local: an in-process, goroutine-based transport
//     used by tests and the single-binary demo.
//   - internal/transport/grpcremote: a real network transport for
//     multi-process deployment.
package transport

import "context"

// Transport is the collective + point-to-point contract a process's ingress
// depends on. All methods are collective across every process in the
// cluster unless stated otherwise.
type Transport interface {
	// Pid returns this process's own id.
	Pid() int
	// NumProcs returns P.
	NumProcs() int

	// Barrier blocks until every process has called Barrier for this
	// logical step.
	Barrier(ctx context.Context) error

	// AllReduceSum sums val across all processes and returns the total to
	// every process.
	AllReduceSum(ctx context.Context, val uint64) (uint64, error)

	// AllGatherBytes gathers one []byte per process (this process
	// contributes val) and returns all P values, indexed by pid, to every
	// process.
	AllGatherBytes(ctx context.Context, val []byte) ([][]byte, error)

	// Broadcast sends val from root to every process and returns the
	// value every process should use (root's own val is returned to
	// root).
	Broadcast(ctx context.Context, root int, val []byte) ([]byte, error)

	// NewExchange returns a fresh point-to-point exchange for one phase
	// of buffered routing, per spec §4.3. Each call to NewExchange starts
	// an independent logical channel: batches sent on one exchange are
	// never visible on another.
	NewExchange(ctx context.Context) (Exchange, error)
}

// Exchange is the §4.3 buffered, P-way routing channel for one phase.
type Exchange interface {
	// Send appends a record to the outgoing buffer for dst. Any
	// non-negative threadID is accepted; the local and grpcremote
	// implementations keep one mutex-guarded buffer per dst and do not
	// partition buffers by threadID.
	Send(dst int, threadID int, payload []byte) error

	// Flush ships all pending buffers and blocks until every process has
	// done the same (a collective barrier), so that every send that
	// preceded Flush is visible to Recv afterward.
	Flush(ctx context.Context) error

	// Recv returns the next available batch of payloads from some
	// sender, and that sender's pid. Returns ok=false once every batch
	// from every sender (across the whole cluster) has been delivered.
	// Batches are delivered in arbitrary order, per spec §4.3.
	Recv() (senderPid int, batch [][]byte, ok bool)

	// Clear drops all retained state.
	Clear()
}
