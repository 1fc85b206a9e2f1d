package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype the fabric uses on its gRPC calls. All
// collections in a job multiplex over the same service so the codec is
// registered once, process wide.
const CodecName = "pannier"

type grpcCodec struct{}

func (grpcCodec) Marshal(v interface{}) ([]byte, error) {
	r, ok := v.(Record)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	e := NewEncoder()
	r.EncodeWire(e)
	return e.Bytes(), nil
}

func (grpcCodec) Unmarshal(data []byte, v interface{}) error {
	r, ok := v.(Record)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return r.DecodeWire(NewDecoder(data))
}

func (grpcCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(grpcCodec{})
}
