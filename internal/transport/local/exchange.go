package local

import (
	"context"
	"strconv"
	"sync"
)

// mailboxEntry is one sender's flushed batch, addressed to a single
// destination pid.
type mailboxEntry struct {
	sender  int
	payload [][]byte
}

// exchangeBox is the shared per-exchange mailbox: one inbox list per
// destination pid, filled by every sender's Flush and drained by that
// destination's Recv.
type exchangeBox struct {
	mu    sync.Mutex
	inbox map[int][]mailboxEntry
}

func (c *Cluster) exchangeBoxFor(key string) *exchangeBox {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boxes == nil {
		c.boxes = make(map[string]*exchangeBox)
	}
	b, ok := c.boxes[key]
	if !ok {
		b = &exchangeBox{inbox: make(map[int][]mailboxEntry)}
		c.boxes[key] = b
	}
	return b
}

// localExchange is the local.Transport's Exchange implementation, grounded
// on spec §4.3: per-destination buffering, flush-then-barrier visibility,
// arbitrary delivery order.
type localExchange struct {
	cluster *Cluster
	key     string
	selfPid int

	mu         sync.Mutex
	pending    map[int][][]byte // dst -> payloads buffered since last Flush
	flushCalls int

	recvMu sync.Mutex
	order  []mailboxEntry
	loaded bool
}

func (e *localExchange) Send(dst int, threadID int, payload []byte) error {
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

func (e *localExchange) Flush(ctx context.Context) error {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	box := e.cluster.exchangeBoxFor(e.key)
	box.mu.Lock()
	for dst, payloads := range pending {
		if len(payloads) == 0 {
			continue
		}
		box.inbox[dst] = append(box.inbox[dst], mailboxEntry{sender: e.selfPid, payload: payloads})
	}
	box.mu.Unlock()

	// Barrier: every process's Nth Flush on this exchange is the same
	// logical step, by program-order convention (see Cluster doc comment).
	e.flushCalls++
	barrierKey := e.key + "/flush#" + strconv.Itoa(e.flushCalls)
	_, err := e.cluster.rendezvous(ctx, barrierKey, func(*barrierStep) {})
	return err
}

// Recv returns the next available batch addressed to this process. ok is
// false once every sender's flushed batch has been delivered.
func (e *localExchange) Recv() (int, [][]byte, bool) {
	e.recvMu.Lock()
	defer e.recvMu.Unlock()

	if !e.loaded {
		box := e.cluster.exchangeBoxFor(e.key)
		box.mu.Lock()
		e.order = append([]mailboxEntry(nil), box.inbox[e.selfPid]...)
		box.mu.Unlock()
		e.loaded = true
	}

	if len(e.order) == 0 {
		return 0, nil, false
	}
	next := e.order[0]
	e.order = e.order[1:]
	return next.sender, next.payload, true
}

func (e *localExchange) Clear() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()

	e.recvMu.Lock()
	e.order = nil
	e.loaded = false
	e.recvMu.Unlock()
}
