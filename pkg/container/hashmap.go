package container

import (
	"context"
	"fmt"

	"github.com/hpckit/pannier/pkg/bootstrap"
	"github.com/hpckit/pannier/pkg/shardrpc"
	"github.com/hpckit/pannier/pkg/store"
	"github.com/hpckit/pannier/pkg/wire"
)

// HashMap is a sharded unordered map of K to V. Point operations route by
// key hash; GetAllData fans out to every shard.
type HashMap[K comparable, V any] struct {
	c     *core
	kc    wire.Codec[K]
	vc    wire.Codec[V]
	store *store.Hash[K, V]
}

// NewHashMap constructs a participant's handle for the named collection.
// Construction is collective: every participant must call it with the same
// name and shard count, and the call blocks on the bootstrap barriers.
func NewHashMap[K comparable, V any](ctx context.Context, cfg Config, rt bootstrap.Runtime, fabric *shardrpc.Fabric, kc wire.Codec[K], vc wire.Codec[V]) (*HashMap[K, V], error) {
	c, err := newCore(cfg, fabric)
	if err != nil {
		return nil, err
	}
	m := &HashMap[K, V]{c: c, kc: kc, vc: vc}
	if cfg.IsServer {
		m.store = store.NewHash[K, V]()
		if err := m.bindHandlers(); err != nil {
			c.close()
			return nil, err
		}
	}
	if err := c.finishConstruct(ctx, rt); err != nil {
		c.close()
		return nil, err
	}
	return m, nil
}

func (m *HashMap[K, V]) bindHandlers() error {
	handlers := map[string]shardrpc.Handler{
		opPut: func(_ context.Context, body []byte) ([]byte, error) {
			d := wire.NewDecoder(body)
			k, err := m.kc.Decode(d)
			if err != nil {
				return nil, err
			}
			v, err := m.vc.Decode(d)
			if err != nil {
				return nil, err
			}
			m.store.Put(k, v)
			return encodeAck(), nil
		},
		opGet: func(_ context.Context, body []byte) ([]byte, error) {
			k, err := m.kc.Decode(wire.NewDecoder(body))
			if err != nil {
				return nil, err
			}
			v, found := m.store.Get(k)
			return encodeFoundValue(m.vc, found, v), nil
		},
		opErase: func(_ context.Context, body []byte) ([]byte, error) {
			k, err := m.kc.Decode(wire.NewDecoder(body))
			if err != nil {
				return nil, err
			}
			var zero V
			return encodeFoundValue(m.vc, m.store.Erase(k), zero), nil
		},
		opGetAllData: func(_ context.Context, _ []byte) ([]byte, error) {
			return encodeEntries(m.kc, m.vc, m.store.All()), nil
		},
	}
	for op, h := range handlers {
		if err := m.c.bind(op, h); err != nil {
			return err
		}
	}
	return nil
}

// routeKey encodes the key and picks its shard. The shard is computed before
// anything else is appended to the encoder so the hash covers exactly the
// key bytes.
func (m *HashMap[K, V]) routeKey(k K) (*wire.Encoder, int) {
	e := wire.NewEncoder()
	m.kc.Encode(e, k)
	return e, m.c.route(e.Bytes())
}

// Put inserts or replaces the value for key. Last writer wins.
func (m *HashMap[K, V]) Put(ctx context.Context, k K, v V) error {
	e, shard := m.routeKey(k)
	m.vc.Encode(e, v)
	res, err := m.c.invoke(ctx, shard, opPut, e.Bytes())
	if err != nil {
		return err
	}
	ok, err := decodeAck(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("container: %s: put rejected", m.c.cfg.Name)
	}
	return nil
}

// Get looks the key up on its shard. A missing key is not an error; found
// reports presence.
func (m *HashMap[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	e, shard := m.routeKey(k)
	res, err := m.c.invoke(ctx, shard, opGet, e.Bytes())
	if err != nil {
		var zero V
		return zero, false, err
	}
	return decodeFoundValue(m.vc, res)
}

// Erase removes the key and reports whether it was present.
func (m *HashMap[K, V]) Erase(ctx context.Context, k K) (bool, error) {
	e, shard := m.routeKey(k)
	res, err := m.c.invoke(ctx, shard, opErase, e.Bytes())
	if err != nil {
		return false, err
	}
	_, existed, err := decodeFoundValue(m.vc, res)
	return existed, err
}

// GetAllData returns every entry in the collection: the concatenation, in
// ascending shard id order, of each shard's contents in its native order.
func (m *HashMap[K, V]) GetAllData(ctx context.Context) ([]store.Entry[K, V], error) {
	bodies, err := m.c.fanout(ctx, opGetAllData, nil)
	if err != nil {
		return nil, err
	}
	return appendDecodedEntries(m.kc, m.vc, bodies)
}

// Close unbinds the collection's handlers and drops the local shard.
func (m *HashMap[K, V]) Close() {
	m.c.close()
	m.store = nil
}
