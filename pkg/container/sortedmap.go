package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/hpckit/pannier/pkg/bootstrap"
	"github.com/hpckit/pannier/pkg/shardrpc"
	"github.com/hpckit/pannier/pkg/store"
	"github.com/hpckit/pannier/pkg/wire"
)

// ErrNoContainsRelation is returned by SortedMap.Contains when the map was
// constructed without a containment relation.
var ErrNoContainsRelation = errors.New("container: sorted map has no containment relation")

// SortedMap is a sharded ordered map of K to V. Each shard keeps its entries
// sorted by the user comparator; GetAllData yields per-shard ascending runs.
//
// When constructed with a containment relation the map additionally supports
// Contains: a fan-out range query for all entries related to a probe key.
// The comparator must keep keys related to any probe adjacent in the order,
// e.g. interval keys sorted by their bounds with an overlap relation.
type SortedMap[K, V any] struct {
	c        *core
	kc       wire.Codec[K]
	vc       wire.Codec[V]
	contains func(outer, inner K) bool
	store    *store.Ordered[K, V]
}

// NewSortedMap constructs a participant's handle for the named collection.
// less orders keys within a shard; contains is the containment relation for
// Contains queries and may be nil when the kind is used as a plain sorted
// map. Both functions must be identical on every participant. Construction
// is collective and blocks on the bootstrap barriers.
func NewSortedMap[K, V any](ctx context.Context, cfg Config, rt bootstrap.Runtime, fabric *shardrpc.Fabric, kc wire.Codec[K], vc wire.Codec[V], less func(K, K) bool, contains func(outer, inner K) bool) (*SortedMap[K, V], error) {
	c, err := newCore(cfg, fabric)
	if err != nil {
		return nil, err
	}
	m := &SortedMap[K, V]{c: c, kc: kc, vc: vc, contains: contains}
	if cfg.IsServer {
		m.store = store.NewOrdered[K, V](less)
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

func (m *SortedMap[K, V]) bindHandlers() error {
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
	if m.contains != nil {
		handlers[opContains] = func(_ context.Context, body []byte) ([]byte, error) {
			k, err := m.kc.Decode(wire.NewDecoder(body))
			if err != nil {
				return nil, err
			}
			return encodeEntries(m.kc, m.vc, m.store.ContainsRange(k, m.contains)), nil
		}
	}
	for op, h := range handlers {
		if err := m.c.bind(op, h); err != nil {
			return err
		}
	}
	return nil
}

func (m *SortedMap[K, V]) routeKey(k K) (*wire.Encoder, int) {
	e := wire.NewEncoder()
	m.kc.Encode(e, k)
	return e, m.c.route(e.Bytes())
}

// Put inserts or replaces the value for key. Last writer wins.
func (m *SortedMap[K, V]) Put(ctx context.Context, k K, v V) error {
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

// Get looks the key up on its shard.
func (m *SortedMap[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	e, shard := m.routeKey(k)
	res, err := m.c.invoke(ctx, shard, opGet, e.Bytes())
	if err != nil {
		var zero V
		return zero, false, err
	}
	return decodeFoundValue(m.vc, res)
}

// Erase removes the key and reports whether it was present.
func (m *SortedMap[K, V]) Erase(ctx context.Context, k K) (bool, error) {
	e, shard := m.routeKey(k)
	res, err := m.c.invoke(ctx, shard, opErase, e.Bytes())
	if err != nil {
		return false, err
	}
	_, existed, err := decodeFoundValue(m.vc, res)
	return existed, err
}

// Contains returns every entry whose key contains k or is contained by k,
// fanning out to all shards and concatenating results in ascending shard id
// order. Requires a containment relation at construction.
func (m *SortedMap[K, V]) Contains(ctx context.Context, k K) ([]store.Entry[K, V], error) {
	if m.contains == nil {
		return nil, ErrNoContainsRelation
	}
	e := wire.NewEncoder()
	m.kc.Encode(e, k)
	bodies, err := m.c.fanout(ctx, opContains, e.Bytes())
	if err != nil {
		return nil, err
	}
	return appendDecodedEntries(m.kc, m.vc, bodies)
}

// GetAllData returns every entry: ascending shard id order, each shard's run
// ascending by the comparator.
func (m *SortedMap[K, V]) GetAllData(ctx context.Context) ([]store.Entry[K, V], error) {
	bodies, err := m.c.fanout(ctx, opGetAllData, nil)
	if err != nil {
		return nil, err
	}
	return appendDecodedEntries(m.kc, m.vc, bodies)
}

// Close unbinds the collection's handlers and drops the local shard.
func (m *SortedMap[K, V]) Close() {
	m.c.close()
	m.store = nil
}
