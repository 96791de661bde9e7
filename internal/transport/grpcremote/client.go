package grpcremote

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"google.golang.org/grpc"

	"github.com/rkhandel/distgraph/internal/transport"
)

// remoteTransport is the production transport.Transport implementation: a
// single persistent Stream to the coordinator, round-tripped synchronously.
// Safe for one goroutine per process to drive at a time, matching how
// internal/finalize.Coordinator uses a Transport (one phase at a time, never
// concurrently from the same pid).
type remoteTransport struct {
	pid      int
	numProcs int
	stream   grpc.ClientStream

	mu    sync.Mutex
	calls map[string]int
}

func (t *remoteTransport) Pid() int      { return t.pid }
func (t *remoteTransport) NumProcs() int { return t.numProcs }

// nextKey returns the step key for this pid's Nth call of kind, mirroring
// internal/transport/local's program-order convention.
func (t *remoteTransport) nextKey(kind string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.calls[kind]
	t.calls[kind] = n + 1
	return fmt.Sprintf("%s#%d", kind, n)
}

func (t *remoteTransport) roundTrip(req *Envelope) (*Envelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("grpcremote: send envelope %s: %w", req.Kind, err)
	}
	var resp Envelope
	if err := t.stream.RecvMsg(&resp); err != nil {
		return nil, fmt.Errorf("grpcremote: recv envelope %s: %w", req.Kind, err)
	}
	return &resp, nil
}

func (t *remoteTransport) Barrier(_ context.Context) error {
	_, err := t.roundTrip(&Envelope{Kind: "barrier", Pid: t.pid, Key: t.nextKey("barrier")})
	return err
}

func (t *remoteTransport) AllReduceSum(_ context.Context, val uint64) (uint64, error) {
	resp, err := t.roundTrip(&Envelope{Kind: "allreduce", Pid: t.pid, Key: t.nextKey("allreduce"), Value: val})
	if err != nil {
		return 0, err
	}
	return resp.Sum, nil
}

func (t *remoteTransport) AllGatherBytes(_ context.Context, val []byte) ([][]byte, error) {
	resp, err := t.roundTrip(&Envelope{Kind: "allgather", Pid: t.pid, Key: t.nextKey("allgather"), Bytes: val})
	if err != nil {
		return nil, err
	}
	return resp.Gathered, nil
}

func (t *remoteTransport) Broadcast(_ context.Context, root int, val []byte) ([]byte, error) {
	resp, err := t.roundTrip(&Envelope{Kind: "broadcast", Pid: t.pid, Key: t.nextKey("broadcast"), Root: root, Bytes: val})
	if err != nil {
		return nil, err
	}
	if len(resp.Gathered) == 0 {
		return nil, fmt.Errorf("grpcremote: broadcast returned no value")
	}
	return resp.Gathered[0], nil
}

func (t *remoteTransport) NewExchange(_ context.Context) (transport.Exchange, error) {
	return &remoteExchange{tr: t, key: t.nextKey("exchange")}, nil
}

// remoteExchange is the grpcremote analogue of
// internal/transport/local.localExchange: buffer locally, ship everything on
// Flush, then block on a flush barrier so every preceding Send is visible to
// every process's Recv afterward.
type remoteExchange struct {
	tr  *remoteTransport
	key string

	mu         sync.Mutex
	pending    map[int][][]byte
	flushCalls int
}

func (e *remoteExchange) Send(dst, _ int, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		e.pending = make(map[int][][]byte)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.pending[dst] = append(e.pending[dst], cp)
	return nil
}

func (e *remoteExchange) Flush(_ context.Context) error {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for dst, payloads := range pending {
		if _, err := e.tr.roundTrip(&Envelope{Kind: "send", Pid: e.tr.pid, Key: e.key, Dst: dst, Batch: payloads}); err != nil {
			return err
		}
	}

	e.flushCalls++
	barrierKey := e.key + "/flush#" + strconv.Itoa(e.flushCalls)
	_, err := e.tr.roundTrip(&Envelope{Kind: "flushbarrier", Pid: e.tr.pid, Key: barrierKey})
	return err
}

func (e *remoteExchange) Recv() (int, [][]byte, bool) {
	resp, err := e.tr.roundTrip(&Envelope{Kind: "recv", Pid: e.tr.pid, Key: e.key})
	if err != nil || !resp.More {
		return 0, nil, false
	}
	return resp.SenderPid, resp.Batch, true
}

func (e *remoteExchange) Clear() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
}
