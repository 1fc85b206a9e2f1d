package container

import (
	"context"

	"github.com/hpckit/pannier/pkg/bootstrap"
	"github.com/hpckit/pannier/pkg/shardrpc"
	"github.com/hpckit/pannier/pkg/wire"

	"github.com/hpckit/pannier/pkg/store"
)

// Set is a sharded membership set of K. Members route by key hash.
type Set[K comparable] struct {
	c     *core
	kc    wire.Codec[K]
	store *store.KeySet[K]
}

// NewSet constructs a participant's handle for the named collection.
// Construction is collective and blocks on the bootstrap barriers.
func NewSet[K comparable](ctx context.Context, cfg Config, rt bootstrap.Runtime, fabric *shardrpc.Fabric, kc wire.Codec[K]) (*Set[K], error) {
	c, err := newCore(cfg, fabric)
	if err != nil {
		return nil, err
	}
	s := &Set[K]{c: c, kc: kc}
	if cfg.IsServer {
		s.store = store.NewKeySet[K]()
		if err := s.bindHandlers(); err != nil {
			c.close()
			return nil, err
		}
	}
	if err := c.finishConstruct(ctx, rt); err != nil {
		c.close()
		return nil, err
	}
	return s, nil
}

func (s *Set[K]) bindHandlers() error {
	handlers := map[string]shardrpc.Handler{
		opPut: func(_ context.Context, body []byte) ([]byte, error) {
			k, err := s.kc.Decode(wire.NewDecoder(body))
			if err != nil {
				return nil, err
			}
			e := wire.NewEncoder()
			e.PutBool(s.store.Add(k))
			return e.Bytes(), nil
		},
		opGet: func(_ context.Context, body []byte) ([]byte, error) {
			k, err := s.kc.Decode(wire.NewDecoder(body))
			if err != nil {
				return nil, err
			}
			e := wire.NewEncoder()
			e.PutBool(s.store.Has(k))
			return e.Bytes(), nil
		},
		opErase: func(_ context.Context, body []byte) ([]byte, error) {
			k, err := s.kc.Decode(wire.NewDecoder(body))
			if err != nil {
				return nil, err
			}
			e := wire.NewEncoder()
			e.PutBool(s.store.Remove(k))
			return e.Bytes(), nil
		},
		opGetAllData: func(_ context.Context, _ []byte) ([]byte, error) {
			e := wire.NewEncoder()
			members := s.store.All()
			e.PutLen(len(members))
			for _, k := range members {
				s.kc.Encode(e, k)
			}
			return e.Bytes(), nil
		},
	}
	for op, h := range handlers {
		if err := s.c.bind(op, h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set[K]) routeKey(k K) (*wire.Encoder, int) {
	e := wire.NewEncoder()
	s.kc.Encode(e, k)
	return e, s.c.route(e.Bytes())
}

// Add inserts the key and reports whether it was newly added.
func (s *Set[K]) Add(ctx context.Context, k K) (bool, error) {
	e, shard := s.routeKey(k)
	res, err := s.c.invoke(ctx, shard, opPut, e.Bytes())
	if err != nil {
		return false, err
	}
	return wire.NewDecoder(res).Bool()
}

// Has reports membership.
func (s *Set[K]) Has(ctx context.Context, k K) (bool, error) {
	e, shard := s.routeKey(k)
	res, err := s.c.invoke(ctx, shard, opGet, e.Bytes())
	if err != nil {
		return false, err
	}
	return wire.NewDecoder(res).Bool()
}

// Remove deletes the key and reports whether it was present.
func (s *Set[K]) Remove(ctx context.Context, k K) (bool, error) {
	e, shard := s.routeKey(k)
	res, err := s.c.invoke(ctx, shard, opErase, e.Bytes())
	if err != nil {
		return false, err
	}
	return wire.NewDecoder(res).Bool()
}

// GetAllData returns every member: ascending shard id order, each shard's
// members in native order.
func (s *Set[K]) GetAllData(ctx context.Context) ([]K, error) {
	bodies, err := s.c.fanout(ctx, opGetAllData, nil)
	if err != nil {
		return nil, err
	}
	var out []K
	for _, body := range bodies {
		d := wire.NewDecoder(body)
		n, err := d.Len()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			k, err := s.kc.Decode(d)
			if err != nil {
				return nil, err
			}
			out = append(out, k)
		}
	}
	return out, nil
}

// Close unbinds the collection's handlers and drops the local shard.
func (s *Set[K]) Close() {
	s.c.close()
	s.store = nil
}
