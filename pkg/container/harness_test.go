package container

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/hpckit/pannier/pkg/bootstrap"
	"github.com/hpckit/pannier/pkg/shardrpc"
	"github.com/lab5e/gotoolbox/netutils"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// The tests run whole jobs in one process: one fabric per simulated rank on
// consecutive loopback ports, with an in-process bootstrap group providing
// the barriers.

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// freeBasePort reserves n consecutive TCP ports and returns the first.
func freeBasePort(t *testing.T, n int) int {
	t.Helper()
	for attempt := 0; attempt < 20; attempt++ {
		base, err := netutils.FreeTCPPort()
		require.NoError(t, err)
		listeners := make([]net.Listener, 0, n)
		ok := true
		for i := 0; i < n; i++ {
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", base+i))
			if err != nil {
				ok = false
				break
			}
			listeners = append(listeners, ln)
		}
		for _, ln := range listeners {
			ln.Close()
		}
		if ok {
			return base
		}
	}
	t.Fatal("no consecutive free ports found")
	return 0
}

// startJob builds numServers server fabrics plus numClients client fabrics
// and a bootstrap group spanning all of them. Rank i < numServers hosts
// shard i.
func startJob(t *testing.T, numServers, numClients int) ([]*shardrpc.Fabric, *bootstrap.LocalGroup) {
	t.Helper()
	base := freeBasePort(t, numServers)
	servers := make([]string, numServers)
	for i := range servers {
		servers[i] = "127.0.0.1"
	}

	fabrics := make([]*shardrpc.Fabric, 0, numServers+numClients)
	for rank := 0; rank < numServers+numClients; rank++ {
		p := shardrpc.Parameters{
			Servers:  servers,
			BasePort: base,
			IsServer: rank < numServers,
		}
		if rank < numServers {
			p.LocalShard = rank
		}
		f, err := shardrpc.NewFabric(p)
		require.NoError(t, err)
		t.Cleanup(f.Shutdown)
		fabrics = append(fabrics, f)
	}
	return fabrics, bootstrap.NewLocalGroup(numServers+numClients, numServers)
}

// configFor is the collection config for one rank of the job.
func configFor(name string, rank, numServers int) Config {
	cfg := Config{
		Name:         name,
		IsServer:     rank < numServers,
		NumShards:    numServers,
		ServerOnNode: true,
	}
	if cfg.IsServer {
		cfg.MyShard = rank
	}
	return cfg
}

// collective runs one constructor per rank concurrently, as the barriers
// require, and fails the test on any error.
func collective(t *testing.T, ranks int, build func(rank int) error) {
	t.Helper()
	var g errgroup.Group
	for rank := 0; rank < ranks; rank++ {
		rank := rank
		g.Go(func() error { return build(rank) })
	}
	require.NoError(t, g.Wait())
}
