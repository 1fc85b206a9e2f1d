package container

import (
	"context"
	"fmt"

	"github.com/hpckit/pannier/pkg/bootstrap"
	"github.com/hpckit/pannier/pkg/sharding"
	"github.com/hpckit/pannier/pkg/shardrpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Operation names. The bound handler for operation op of collection c is
// named "c_op"; collection names are job-unique so handler names are too.
const (
	opPut        = "Put"
	opGet        = "Get"
	opErase      = "Erase"
	opContains   = "Contains"
	opGetAllData = "GetAllData"
	opPush       = "Push"
	opPop        = "Pop"
	opTop        = "Top"
	opSize       = "Size"
)

// core carries the routing and dispatch machinery shared by every container
// kind. The kinds differ only in their local store and handler set.
type core struct {
	cfg    Config
	fabric *shardrpc.Fabric
	route  sharding.KeyFunc
	local  map[string]shardrpc.Handler
	log    *logrus.Entry
}

func newCore(cfg Config, fabric *shardrpc.Fabric) (*core, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if fabric == nil {
		return nil, fmt.Errorf("container: %s: nil fabric (did you call shardrpc.Init?)", cfg.Name)
	}
	if fabric.NumShards() != cfg.NumShards {
		return nil, fmt.Errorf("container: %s: shard count %d does not match fabric's %d",
			cfg.Name, cfg.NumShards, fabric.NumShards())
	}
	return &core{
		cfg:    cfg,
		fabric: fabric,
		route:  sharding.NewKeySharder(cfg.NumShards),
		local:  make(map[string]shardrpc.Handler),
		// The per-shard physical name disambiguates co-located shards in logs.
		log: logrus.WithField("collection", fmt.Sprintf("%s#%d", cfg.Name, cfg.MyShard)),
	}, nil
}

func (c *core) handlerName(op string) string {
	return c.cfg.Name + "_" + op
}

// bind registers a handler with the fabric and keeps it for the in-process
// fast path. A duplicate name means two collections share a name, which is a
// fatal configuration error surfaced to the constructor.
func (c *core) bind(op string, h shardrpc.Handler) error {
	if err := c.fabric.Bind(c.handlerName(op), h); err != nil {
		return err
	}
	c.local[op] = h
	return nil
}

// finishConstruct runs the two construction barriers: the first guarantees
// every shard's handlers are online before any client proceeds, the second
// that every participant has attached before any operation is issued.
func (c *core) finishConstruct(ctx context.Context, rt bootstrap.Runtime) error {
	if err := rt.Barrier(ctx); err != nil {
		return fmt.Errorf("container: %s: post-bind barrier: %w", c.cfg.Name, err)
	}
	if err := rt.Barrier(ctx); err != nil {
		return fmt.Errorf("container: %s: post-attach barrier: %w", c.cfg.Name, err)
	}
	c.log.Debug("Collection constructed")
	return nil
}

// invoke routes one operation to a shard. When the routed shard is hosted by
// this process and the fast path is enabled the bound closure runs inline;
// otherwise the call goes through the fabric.
func (c *core) invoke(ctx context.Context, shard int, op string, body []byte) ([]byte, error) {
	if c.cfg.IsServer && shard == c.cfg.MyShard && c.cfg.ServerOnNode {
		h, ok := c.local[op]
		if !ok {
			return nil, fmt.Errorf("container: %s: no local handler for %s", c.cfg.Name, op)
		}
		c.fabric.LogLocal(c.handlerName(op))
		return h(ctx, body)
	}
	return c.fabric.Call(ctx, shard, c.handlerName(op), body)
}

// fanout issues the operation to every shard concurrently and returns the
// raw per-shard results in ascending shard id order. Any sub-call failure
// fails the whole operation; partial results are discarded.
func (c *core) fanout(ctx context.Context, op string, body []byte) ([][]byte, error) {
	c.fabric.LogFanout(c.handlerName(op))
	results := make([][]byte, c.cfg.NumShards)
	g, ctx := errgroup.WithContext(ctx)
	for shard := 0; shard < c.cfg.NumShards; shard++ {
		shard := shard
		g.Go(func() error {
			res, err := c.invoke(ctx, shard, op, body)
			if err != nil {
				return fmt.Errorf("container: %s: fan-out %s to shard %d: %w", c.cfg.Name, op, shard, err)
			}
			results[shard] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkShard validates a caller-chosen shard id for the queue-like kinds.
func (c *core) checkShard(shard int) error {
	if shard < 0 || shard >= c.cfg.NumShards {
		return fmt.Errorf("container: %s: shard %d outside [0,%d)", c.cfg.Name, shard, c.cfg.NumShards)
	}
	return nil
}

// close unbinds the collection's handlers. The local store is dropped by the
// owning kind.
func (c *core) close() {
	for op := range c.local {
		c.fabric.Unbind(c.handlerName(op))
		delete(c.local, op)
	}
	c.log.Debug("Collection closed")
}
