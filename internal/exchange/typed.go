package exchange

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/rkhandel/distgraph/internal/transport"
)

// Typed wraps a transport.Exchange, encoding/decoding records of type T with
// encoding/gob so protocol phases can work with Go structs directly instead
// of raw bytes, per the reimplementation note in spec §9 ("reimplement as
// an iterator of batches on the receive side").
type Typed[T any] struct {
	inner transport.Exchange
}

// Wrap adapts an existing transport.Exchange to carry records of type T.
func Wrap[T any](inner transport.Exchange) *Typed[T] {
	return &Typed[T]{inner: inner}
}

// Send encodes rec and routes it to dst via the underlying exchange.
func (t *Typed[T]) Send(dst int, threadID int, rec T) error {
	buf, err := encode(rec)
	if err != nil {
		return fmt.Errorf("exchange: encode failed: %w", err)
	}
	return t.inner.Send(dst, threadID, buf)
}

// Flush ships all pending buffers and blocks until every process does the
// same.
func (t *Typed[T]) Flush(ctx context.Context) error {
	return t.inner.Flush(ctx)
}

// Recv decodes and returns the next available batch, and its sender pid.
func (t *Typed[T]) Recv() (senderPid int, batch []T, ok bool) {
	sender, raw, ok := t.inner.Recv()
	if !ok {
		return 0, nil, false
	}
	out := make([]T, len(raw))
	for i, b := range raw {
		if err := decode(b, &out[i]); err != nil {
			// A decode failure here means the transport delivered a
			// corrupt payload, which is an invariant violation of the
			// exchange contract, not a recoverable ingress error.
			panic(fmt.Sprintf("exchange: decode failed for batch from proc %d: %v", sender, err))
		}
	}
	return sender, out, true
}

// Clear drops all retained state on the underlying exchange.
func (t *Typed[T]) Clear() { t.inner.Clear() }

func encode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode[T any](b []byte, out *T) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(out)
}
