package shardrpc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Parameters configures the RPC fabric for one process. The struct uses
// annotations from Kong (https://github.com/alecthomas/kong) so binaries can
// embed it directly.
type Parameters struct {
	Servers     []string      `kong:"help='Server host list, one entry per shard'"`
	BasePort    int           `kong:"help='First TCP port. Shard s listens on base+s',default='9600'"`
	LocalShard  int           `kong:"help='Shard id hosted by this process',default='0'"`
	IsServer    bool          `kong:"help='Host a shard in this process',default='false'"`
	CallTimeout time.Duration `kong:"help='Per-call timeout. 0 blocks until transport failure',default='0'"`
	Metrics     string        `kong:"help='Metrics sink to use',enum='prometheus,none',default='none'"`
}

func (p Parameters) validate() error {
	if len(p.Servers) == 0 {
		return errors.New("shardrpc: empty server list")
	}
	if p.BasePort <= 0 || p.BasePort+len(p.Servers) > 65536 {
		return fmt.Errorf("shardrpc: base port %d leaves no room for %d shards", p.BasePort, len(p.Servers))
	}
	if p.LocalShard < 0 || p.LocalShard >= len(p.Servers) {
		return fmt.Errorf("shardrpc: local shard %d outside [0,%d)", p.LocalShard, len(p.Servers))
	}
	return nil
}

// Directory is the immutable shard to endpoint mapping for the job. Shard s
// lives on Servers[s], port BasePort+s. The mapping is shared by every
// collection in the process and never changes after construction, so it can
// be read from any goroutine without synchronisation.
type Directory struct {
	servers    []string
	basePort   int
	localShard int
	isServer   bool
}

func newDirectory(p Parameters) (*Directory, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	servers := make([]string, len(p.Servers))
	copy(servers, p.Servers)
	return &Directory{
		servers:    servers,
		basePort:   p.BasePort,
		localShard: p.LocalShard,
		isServer:   p.IsServer,
	}, nil
}

// NumShards returns the fixed shard count for the job.
func (d *Directory) NumShards() int {
	return len(d.servers)
}

// LocalShard returns the shard id this process hosts (meaningful only when
// IsServer is true).
func (d *Directory) LocalShard() int {
	return d.localShard
}

// IsServer reports whether this process hosts a shard.
func (d *Directory) IsServer() bool {
	return d.isServer
}

// Endpoint returns the host:port for a shard's server.
func (d *Directory) Endpoint(shard int) (string, error) {
	if shard < 0 || shard >= len(d.servers) {
		return "", fmt.Errorf("shardrpc: shard %d outside [0,%d)", shard, len(d.servers))
	}
	return net.JoinHostPort(d.servers[shard], strconv.Itoa(d.basePort+shard)), nil
}

// ListenAddress returns the address the local shard's server listens on.
func (d *Directory) ListenAddress() string {
	return ":" + strconv.Itoa(d.basePort+d.localShard)
}
