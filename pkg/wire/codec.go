package wire

// Codec encodes and decodes a single Go type. Collections are parameterised
// on codecs for their key and value types so that routing and the RPC fabric
// see nothing but bytes.
type Codec[T any] interface {
	Encode(e *Encoder, v T)
	Decode(d *Decoder) (T, error)
}

// Record is implemented by user-defined types that serialise themselves.
// Register one with RecordOf to obtain a Codec for it.
type Record interface {
	EncodeWire(e *Encoder)
	DecodeWire(d *Decoder) error
}

type boolCodec struct{}

func (boolCodec) Encode(e *Encoder, v bool)     { e.PutBool(v) }
func (boolCodec) Decode(d *Decoder) (bool, error) { return d.Bool() }

// Bool returns the codec for bool.
func Bool() Codec[bool] { return boolCodec{} }

type uint64Codec struct{}

func (uint64Codec) Encode(e *Encoder, v uint64)       { e.PutUint64(v) }
func (uint64Codec) Decode(d *Decoder) (uint64, error) { return d.Uint64() }

// Uint64 returns the codec for uint64.
func Uint64() Codec[uint64] { return uint64Codec{} }

type int64Codec struct{}

func (int64Codec) Encode(e *Encoder, v int64)       { e.PutInt64(v) }
func (int64Codec) Decode(d *Decoder) (int64, error) { return d.Int64() }

// Int64 returns the codec for int64.
func Int64() Codec[int64] { return int64Codec{} }

type float64Codec struct{}

func (float64Codec) Encode(e *Encoder, v float64)       { e.PutFloat64(v) }
func (float64Codec) Decode(d *Decoder) (float64, error) { return d.Float64() }

// Float64 returns the codec for float64.
func Float64() Codec[float64] { return float64Codec{} }

type stringCodec struct{}

func (stringCodec) Encode(e *Encoder, v string)       { e.PutString(v) }
func (stringCodec) Decode(d *Decoder) (string, error) { return d.String() }

// String returns the codec for string.
func String() Codec[string] { return stringCodec{} }

type bytesCodec struct{}

func (bytesCodec) Encode(e *Encoder, v []byte)       { e.PutBytes(v) }
func (bytesCodec) Decode(d *Decoder) ([]byte, error) { return d.Bytes() }

// Bytes returns the codec for byte slices.
func Bytes() Codec[[]byte] { return bytesCodec{} }

// Pair is an ordered pair of two values.
type Pair[A, B any] struct {
	First  A
	Second B
}

type pairCodec[A, B any] struct {
	a Codec[A]
	b Codec[B]
}

func (c pairCodec[A, B]) Encode(e *Encoder, v Pair[A, B]) {
	c.a.Encode(e, v.First)
	c.b.Encode(e, v.Second)
}

func (c pairCodec[A, B]) Decode(d *Decoder) (Pair[A, B], error) {
	var p Pair[A, B]
	var err error
	if p.First, err = c.a.Decode(d); err != nil {
		return p, err
	}
	if p.Second, err = c.b.Decode(d); err != nil {
		return p, err
	}
	return p, nil
}

// PairOf returns the codec for an ordered pair, first element then second.
func PairOf[A, B any](a Codec[A], b Codec[B]) Codec[Pair[A, B]] {
	return pairCodec[A, B]{a: a, b: b}
}

type sliceCodec[T any] struct {
	elem Codec[T]
}

func (c sliceCodec[T]) Encode(e *Encoder, v []T) {
	e.PutLen(len(v))
	for i := range v {
		c.elem.Encode(e, v[i])
	}
}

func (c sliceCodec[T]) Decode(d *Decoder) ([]T, error) {
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, err := c.elem.Decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SliceOf returns the codec for a count-prefixed homogeneous sequence.
func SliceOf[T any](elem Codec[T]) Codec[[]T] {
	return sliceCodec[T]{elem: elem}
}

type recordCodec[T any, PT interface {
	*T
	Record
}] struct{}

func (recordCodec[T, PT]) Encode(e *Encoder, v T) {
	PT(&v).EncodeWire(e)
}

func (recordCodec[T, PT]) Decode(d *Decoder) (T, error) {
	var v T
	if err := PT(&v).DecodeWire(d); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// RecordOf returns a codec for a user-defined record type whose pointer
// implements Record.
func RecordOf[T any, PT interface {
	*T
	Record
}]() Codec[T] {
	return recordCodec[T, PT]{}
}
