package container

import (
	"testing"

	"github.com/hpckit/pannier/pkg/sharding"
	"github.com/hpckit/pannier/pkg/store"
	"github.com/hpckit/pannier/pkg/wire"
	"github.com/stretchr/testify/require"
)

func buildHashMaps(t *testing.T, name string, numServers, numClients int) []*HashMap[uint64, string] {
	t.Helper()
	fabrics, group := startJob(t, numServers, numClients)
	ctx := testContext(t)

	maps := make([]*HashMap[uint64, string], len(fabrics))
	collective(t, len(fabrics), func(rank int) error {
		m, err := NewHashMap(ctx, configFor(name, rank, numServers), group.Runtime(rank), fabrics[rank], wire.Uint64(), wire.String())
		maps[rank] = m
		return err
	})
	t.Cleanup(func() {
		for _, m := range maps {
			m.Close()
		}
	})
	return maps
}

func TestHashMapPutLocalGetRemote(t *testing.T) {
	assert := require.New(t)
	maps := buildHashMaps(t, "t1", 2, 0)
	ctx := testContext(t)

	// Rank 0 writes; rank 1 must observe the value wherever key 17 routed.
	assert.NoError(maps[0].Put(ctx, 17, "a"))

	v, found, err := maps[1].Get(ctx, 17)
	assert.NoError(err)
	assert.True(found)
	assert.Equal("a", v)
}

func TestHashMapOverwrite(t *testing.T) {
	assert := require.New(t)
	maps := buildHashMaps(t, "t2", 2, 0)
	ctx := testContext(t)

	assert.NoError(maps[0].Put(ctx, 5, "x"))
	assert.NoError(maps[0].Put(ctx, 5, "y"))

	v, found, err := maps[1].Get(ctx, 5)
	assert.NoError(err)
	assert.True(found)
	assert.Equal("y", v)
}

func TestHashMapEraseThenGet(t *testing.T) {
	assert := require.New(t)
	maps := buildHashMaps(t, "t3", 2, 0)
	ctx := testContext(t)

	assert.NoError(maps[0].Put(ctx, 9, "z"))

	existed, err := maps[1].Erase(ctx, 9)
	assert.NoError(err)
	assert.True(existed)

	_, found, err := maps[0].Get(ctx, 9)
	assert.NoError(err)
	assert.False(found)

	// Erasing a missing key is a miss, not an error.
	existed, err = maps[0].Erase(ctx, 9)
	assert.NoError(err)
	assert.False(existed)
}

func TestHashMapGetMissing(t *testing.T) {
	assert := require.New(t)
	maps := buildHashMaps(t, "t4", 2, 0)
	ctx := testContext(t)

	v, found, err := maps[0].Get(ctx, 404)
	assert.NoError(err)
	assert.False(found)
	assert.Equal("", v, "miss carries the default value")
}

func TestHashMapGetAllDataFanout(t *testing.T) {
	assert := require.New(t)
	const numServers = 3
	maps := buildHashMaps(t, "t5", numServers, 0)
	ctx := testContext(t)

	inserted := map[uint64]string{1: "a", 2: "b", 3: "c"}
	for k, v := range inserted {
		assert.NoError(maps[0].Put(ctx, k, v))
	}

	all, err := maps[1].GetAllData(ctx)
	assert.NoError(err)
	assert.Len(all, len(inserted))

	got := make(map[uint64]string)
	for _, e := range all {
		got[e.Key] = e.Value
	}
	assert.Equal(inserted, got)

	// Results are grouped in ascending shard id order.
	route := sharding.NewKeySharder(numServers)
	shardOf := func(k uint64) int {
		e := wire.NewEncoder()
		wire.Uint64().Encode(e, k)
		return route(e.Bytes())
	}
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(shardOf(all[i-1].Key), shardOf(all[i].Key))
	}
}

func TestHashMapClientRank(t *testing.T) {
	assert := require.New(t)
	// Two servers plus one pure client rank with no shard of its own.
	maps := buildHashMaps(t, "t6", 2, 1)
	ctx := testContext(t)

	client := maps[2]
	assert.NoError(client.Put(ctx, 100, "from-client"))

	v, found, err := maps[0].Get(ctx, 100)
	assert.NoError(err)
	assert.True(found)
	assert.Equal("from-client", v)

	all, err := client.GetAllData(ctx)
	assert.NoError(err)
	assert.Equal([]store.Entry[uint64, string]{{Key: 100, Value: "from-client"}}, all)
}

func TestHashMapFanoutCompleteness(t *testing.T) {
	assert := require.New(t)
	maps := buildHashMaps(t, "t7", 3, 0)
	ctx := testContext(t)

	const n = 60
	for i := uint64(0); i < n; i++ {
		rank := int(i) % len(maps)
		assert.NoError(maps[rank].Put(ctx, i, "v"))
	}

	all, err := maps[2].GetAllData(ctx)
	assert.NoError(err)
	assert.Len(all, n, "every inserted pair appears exactly once")

	seen := make(map[uint64]bool)
	for _, e := range all {
		assert.False(seen[e.Key], "key %d duplicated", e.Key)
		seen[e.Key] = true
	}
}

func TestHashMapDuplicateCollectionName(t *testing.T) {
	assert := require.New(t)
	fabrics, group := startJob(t, 1, 0)
	ctx := testContext(t)

	m, err := NewHashMap(ctx, configFor("dup", 0, 1), group.Runtime(0), fabrics[0], wire.Uint64(), wire.String())
	assert.NoError(err)
	defer m.Close()

	// A second collection with the same name collides on handler names.
	_, err = NewHashMap(ctx, configFor("dup", 0, 1), group.Runtime(0), fabrics[0], wire.Uint64(), wire.String())
	assert.Error(err)
}

func TestConfigValidation(t *testing.T) {
	assert := require.New(t)

	assert.Error(Config{Name: "", NumShards: 1}.validate())
	assert.Error(Config{Name: "x", NumShards: 0}.validate())
	assert.Error(Config{Name: "x", NumShards: 2, MyShard: 2}.validate())
	assert.NoError(Config{Name: "x", NumShards: 2, MyShard: 1}.validate())
}
