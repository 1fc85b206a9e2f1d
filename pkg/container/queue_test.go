package container

import (
	"testing"

	"github.com/hpckit/pannier/pkg/wire"
	"github.com/stretchr/testify/require"
)

func buildQueues(t *testing.T, name string, numServers int) []*Queue[string] {
	t.Helper()
	fabrics, group := startJob(t, numServers, 0)
	ctx := testContext(t)

	queues := make([]*Queue[string], len(fabrics))
	collective(t, len(fabrics), func(rank int) error {
		q, err := NewQueue(ctx, configFor(name, rank, numServers), group.Runtime(rank), fabrics[rank], wire.String())
		queues[rank] = q
		return err
	})
	t.Cleanup(func() {
		for _, q := range queues {
			q.Close()
		}
	})
	return queues
}

func TestQueueFIFOOrder(t *testing.T) {
	assert := require.New(t)
	queues := buildQueues(t, "q1", 2)
	ctx := testContext(t)

	for _, v := range []string{"first", "second", "third"} {
		assert.NoError(queues[0].Push(ctx, v, 1))
	}

	front, ok, err := queues[1].Front(ctx, 1)
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("first", front)

	for _, want := range []string{"first", "second", "third"} {
		v, ok, err := queues[1].Pop(ctx, 1)
		assert.NoError(err)
		assert.True(ok)
		assert.Equal(want, v)
	}

	_, ok, err = queues[0].Pop(ctx, 1)
	assert.NoError(err)
	assert.False(ok)
}

func TestQueueSize(t *testing.T) {
	assert := require.New(t)
	queues := buildQueues(t, "q2", 2)
	ctx := testContext(t)

	size, err := queues[0].Size(ctx, 0)
	assert.NoError(err)
	assert.Equal(uint64(0), size)

	assert.NoError(queues[1].Push(ctx, "x", 0))
	assert.NoError(queues[1].Push(ctx, "y", 0))

	size, err = queues[1].Size(ctx, 0)
	assert.NoError(err)
	assert.Equal(uint64(2), size)
}
