package bootstrap

import (
	"context"
	"fmt"
	"sync"
)

// LocalGroup is an in-process Runtime provider for tests and single-host
// runs. All participants share one cyclic barrier; each rank runs on its own
// goroutine and all servers resolve to 127.0.0.1.
type LocalGroup struct {
	size    int
	servers []string
	barrier *cyclicBarrier
}

// NewLocalGroup creates a group of size participants backed by numServers
// local servers.
func NewLocalGroup(size, numServers int) *LocalGroup {
	servers := make([]string, numServers)
	for i := range servers {
		servers[i] = "127.0.0.1"
	}
	return &LocalGroup{
		size:    size,
		servers: servers,
		barrier: newCyclicBarrier(size),
	}
}

// Runtime returns the Runtime handle for one rank.
func (g *LocalGroup) Runtime(rank int) Runtime {
	if rank < 0 || rank >= g.size {
		panic(fmt.Sprintf("bootstrap: rank %d outside [0,%d)", rank, g.size))
	}
	return &localRuntime{group: g, rank: rank}
}

type localRuntime struct {
	group *LocalGroup
	rank  int
}

func (l *localRuntime) Rank() int         { return l.rank }
func (l *localRuntime) Size() int         { return l.group.size }
func (l *localRuntime) Servers() []string { return l.group.servers }

func (l *localRuntime) Barrier(ctx context.Context) error {
	return l.group.barrier.Await(ctx)
}

// cyclicBarrier releases all parties once the last one arrives, then resets
// for the next round. A participant that abandons the barrier on context
// cancellation leaves the group broken; the job is expected to tear down.
type cyclicBarrier struct {
	mu      sync.Mutex
	parties int
	waiting int
	release chan struct{}
}

func newCyclicBarrier(parties int) *cyclicBarrier {
	return &cyclicBarrier{
		parties: parties,
		release: make(chan struct{}),
	}
}

func (b *cyclicBarrier) Await(ctx context.Context) error {
	b.mu.Lock()
	ch := b.release
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.release = make(chan struct{})
		close(ch)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
