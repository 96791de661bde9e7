// Package local provides a deterministic, goroutine-based Transport used by
// tests and the single-binary demo, simulating a P-process cluster the way
// the teacher's cmd/multi-worker-test simulates concurrent workers inside
// one binary.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/rkhandel/distgraph/internal/transport"
)

// Cluster is the shared rendezvous every process's Transport talks through,
// playing the role the teacher's CoordinationService/Server plays for
// rounds: a single point where all P participants meet before anyone
// proceeds.
//
// Every process is expected to call collectives (Barrier/AllReduceSum/...)
// the same number of times, in the same order, per spec §5's "a full
// barrier establishes happens-before" ordering guarantee. That program-order
// guarantee is what lets each pid's Nth call of a given kind be treated as
// the same logical step as every other pid's Nth call, without any
// out-of-band coordination of step numbers.
type Cluster struct {
	numProcs int

	mu    sync.Mutex
	steps map[string]*barrierStep // "kind#epoch" -> step
	boxes map[string]*exchangeBox // exchange key -> mailbox
}

type barrierStep struct {
	arrived int
	done    chan struct{}

	sum    uint64   // allreduce
	values [][]byte // allgather (indexed by pid) / broadcast (single-elem)
}

// NewCluster returns a Cluster for numProcs simulated processes.
func NewCluster(numProcs int) *Cluster {
	return &Cluster{numProcs: numProcs, steps: make(map[string]*barrierStep)}
}

// Transport returns the Transport handle for pid within this cluster.
func (c *Cluster) Transport(pid int) transport.Transport {
	return &localTransport{cluster: c, pid: pid, calls: make(map[string]int)}
}

func (c *Cluster) stepFor(key string) *barrierStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.steps[key]
	if !ok {
		s = &barrierStep{done: make(chan struct{})}
		c.steps[key] = s
	}
	return s
}

// rendezvous is the shared "arrive, contribute, wait for everyone" primitive
// every collective is built from.
func (c *Cluster) rendezvous(ctx context.Context, key string, contribute func(*barrierStep)) (*barrierStep, error) {
	s := c.stepFor(key)

	c.mu.Lock()
	contribute(s)
	s.arrived++
	last := s.arrived == c.numProcs
	c.mu.Unlock()

	if last {
		close(s.done)
	}

	select {
	case <-s.done:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type localTransport struct {
	cluster *Cluster
	pid     int

	mu    sync.Mutex
	calls map[string]int
}

func (t *localTransport) Pid() int      { return t.pid }
func (t *localTransport) NumProcs() int { return t.cluster.numProcs }

// nextKey returns the step key for this pid's Nth call of kind, and advances
// the per-kind call counter.
func (t *localTransport) nextKey(kind string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.calls[kind]
	t.calls[kind] = n + 1
	return fmt.Sprintf("%s#%d", kind, n)
}

func (t *localTransport) Barrier(ctx context.Context) error {
	_, err := t.cluster.rendezvous(ctx, t.nextKey("barrier"), func(*barrierStep) {})
	return err
}

func (t *localTransport) AllReduceSum(ctx context.Context, val uint64) (uint64, error) {
	s, err := t.cluster.rendezvous(ctx, t.nextKey("allreduce"), func(s *barrierStep) {
		s.sum += val
	})
	if err != nil {
		return 0, err
	}
	return s.sum, nil
}

func (t *localTransport) AllGatherBytes(ctx context.Context, val []byte) ([][]byte, error) {
	key := t.nextKey("allgather")
	s := t.cluster.stepFor(key)

	t.cluster.mu.Lock()
	if s.values == nil {
		s.values = make([][]byte, t.cluster.numProcs)
	}
	s.values[t.pid] = val
	t.cluster.mu.Unlock()

	s, err := t.cluster.rendezvous(ctx, key, func(*barrierStep) {})
	if err != nil {
		return nil, err
	}
	return s.values, nil
}

func (t *localTransport) Broadcast(ctx context.Context, root int, val []byte) ([]byte, error) {
	key := t.nextKey("broadcast")
	s := t.cluster.stepFor(key)
	if t.pid == root {
		t.cluster.mu.Lock()
		s.values = [][]byte{val}
		t.cluster.mu.Unlock()
	}

	s, err := t.cluster.rendezvous(ctx, key, func(*barrierStep) {})
	if err != nil {
		return nil, err
	}
	if len(s.values) == 0 {
		return nil, fmt.Errorf("local transport: broadcast root %d never contributed a value", root)
	}
	return s.values[0], nil
}

func (t *localTransport) NewExchange(ctx context.Context) (transport.Exchange, error) {
	key := t.nextKey("exchange")
	return &localExchange{cluster: t.cluster, key: key, selfPid: t.pid}, nil
}
