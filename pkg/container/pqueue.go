package container

import (
	"context"

	"github.com/hpckit/pannier/pkg/bootstrap"
	"github.com/hpckit/pannier/pkg/shardrpc"
	"github.com/hpckit/pannier/pkg/store"
	"github.com/hpckit/pannier/pkg/wire"
)

// PriorityQueue is a sharded max-heap of V: the top of each shard is its
// comparator-greatest element. Unlike the keyed kinds the caller names the
// shard explicitly on every operation, which lets a job pin work queues to
// specific servers.
type PriorityQueue[V any] struct {
	c     *core
	vc    wire.Codec[V]
	store *store.Heap[V]
}

// NewPriorityQueue constructs a participant's handle for the named
// collection. less must be identical on every participant. Construction is
// collective and blocks on the bootstrap barriers.
func NewPriorityQueue[V any](ctx context.Context, cfg Config, rt bootstrap.Runtime, fabric *shardrpc.Fabric, vc wire.Codec[V], less func(V, V) bool) (*PriorityQueue[V], error) {
	c, err := newCore(cfg, fabric)
	if err != nil {
		return nil, err
	}
	q := &PriorityQueue[V]{c: c, vc: vc}
	if cfg.IsServer {
		q.store = store.NewHeap(less)
		if err := q.bindHandlers(); err != nil {
			c.close()
			return nil, err
		}
	}
	if err := c.finishConstruct(ctx, rt); err != nil {
		c.close()
		return nil, err
	}
	return q, nil
}

func (q *PriorityQueue[V]) bindHandlers() error {
	handlers := map[string]shardrpc.Handler{
		opPush: func(_ context.Context, body []byte) ([]byte, error) {
			v, err := q.vc.Decode(wire.NewDecoder(body))
			if err != nil {
				return nil, err
			}
			q.store.Push(v)
			return encodeAck(), nil
		},
		opPop: func(_ context.Context, _ []byte) ([]byte, error) {
			v, ok := q.store.Pop()
			return encodeFoundValue(q.vc, ok, v), nil
		},
		// Top reads without mutating. Remote Top dispatches this handler,
		// never Pop.
		opTop: func(_ context.Context, _ []byte) ([]byte, error) {
			v, ok := q.store.Top()
			return encodeFoundValue(q.vc, ok, v), nil
		},
		opSize: func(_ context.Context, _ []byte) ([]byte, error) {
			e := wire.NewEncoder()
			e.PutUint64(uint64(q.store.Len()))
			return e.Bytes(), nil
		},
	}
	for op, h := range handlers {
		if err := q.c.bind(op, h); err != nil {
			return err
		}
	}
	return nil
}

// Push adds a value on the chosen shard.
func (q *PriorityQueue[V]) Push(ctx context.Context, v V, shard int) error {
	if err := q.c.checkShard(shard); err != nil {
		return err
	}
	e := wire.NewEncoder()
	q.vc.Encode(e, v)
	res, err := q.c.invoke(ctx, shard, opPush, e.Bytes())
	if err != nil {
		return err
	}
	_, err = decodeAck(res)
	return err
}

// Pop removes and returns the greatest value on the chosen shard. An empty
// shard is not an error; ok reports whether a value was present.
func (q *PriorityQueue[V]) Pop(ctx context.Context, shard int) (V, bool, error) {
	if err := q.c.checkShard(shard); err != nil {
		var zero V
		return zero, false, err
	}
	res, err := q.c.invoke(ctx, shard, opPop, nil)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return decodeFoundValue(q.vc, res)
}

// Top returns the greatest value on the chosen shard without removing it.
func (q *PriorityQueue[V]) Top(ctx context.Context, shard int) (V, bool, error) {
	if err := q.c.checkShard(shard); err != nil {
		var zero V
		return zero, false, err
	}
	res, err := q.c.invoke(ctx, shard, opTop, nil)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return decodeFoundValue(q.vc, res)
}

// Size returns the number of values on the chosen shard.
func (q *PriorityQueue[V]) Size(ctx context.Context, shard int) (uint64, error) {
	if err := q.c.checkShard(shard); err != nil {
		return 0, err
	}
	res, err := q.c.invoke(ctx, shard, opSize, nil)
	if err != nil {
		return 0, err
	}
	return wire.NewDecoder(res).Uint64()
}

// Close unbinds the collection's handlers and drops the local shard.
func (q *PriorityQueue[V]) Close() {
	q.c.close()
	q.store = nil
}
