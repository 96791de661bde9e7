package grpcremote

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// codecName selects gobCodec via grpc's content-subtype negotiation, so the
// Collective service never needs protoc-generated message types.
const codecName = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// gobCodec implements grpc/encoding.Codec over encoding/gob. Any Go struct
// can be a wire message this way, not just generated protobuf types.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return codecName }
