package container

import (
	"github.com/hpckit/pannier/pkg/store"
	"github.com/hpckit/pannier/pkg/wire"
)

// Wire helpers for the argument and result tuples the handlers exchange.
// Misses are not errors: they travel as a (found, default) tuple.

func encodeAck() []byte {
	e := wire.NewEncoder()
	e.PutBool(true)
	return e.Bytes()
}

func decodeAck(body []byte) (bool, error) {
	return wire.NewDecoder(body).Bool()
}

func encodeFoundValue[V any](vc wire.Codec[V], found bool, v V) []byte {
	e := wire.NewEncoder()
	e.PutBool(found)
	vc.Encode(e, v)
	return e.Bytes()
}

func decodeFoundValue[V any](vc wire.Codec[V], body []byte) (V, bool, error) {
	d := wire.NewDecoder(body)
	found, err := d.Bool()
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, err := vc.Decode(d)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return v, found, nil
}

func encodeEntries[K, V any](kc wire.Codec[K], vc wire.Codec[V], entries []store.Entry[K, V]) []byte {
	e := wire.NewEncoder()
	e.PutLen(len(entries))
	for i := range entries {
		kc.Encode(e, entries[i].Key)
		vc.Encode(e, entries[i].Value)
	}
	return e.Bytes()
}

func decodeEntries[K, V any](kc wire.Codec[K], vc wire.Codec[V], body []byte) ([]store.Entry[K, V], error) {
	d := wire.NewDecoder(body)
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	out := make([]store.Entry[K, V], 0, n)
	for i := 0; i < n; i++ {
		k, err := kc.Decode(d)
		if err != nil {
			return nil, err
		}
		v, err := vc.Decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Entry[K, V]{Key: k, Value: v})
	}
	return out, nil
}

// appendDecodedEntries concatenates per-shard results, preserving each
// shard's native order within the whole.
func appendDecodedEntries[K, V any](kc wire.Codec[K], vc wire.Codec[V], bodies [][]byte) ([]store.Entry[K, V], error) {
	var out []store.Entry[K, V]
	for _, body := range bodies {
		entries, err := decodeEntries(kc, vc, body)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}
