package bootstrap

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Rank and size variables set by the common launchers, tried in order.
var (
	rankVars = []string{"PANNIER_RANK", "PMI_RANK", "OMPI_COMM_WORLD_RANK", "SLURM_PROCID"}
	sizeVars = []string{"PANNIER_SIZE", "PMI_SIZE", "OMPI_COMM_WORLD_SIZE", "SLURM_NTASKS"}
)

// EnvParameters configures the environment-backed runtime. The struct uses
// annotations from Kong (https://github.com/alecthomas/kong).
//
// When no hostfile is given the server list is built via zeroconf instead:
// the first NumServers ranks announce their shard on the fabric port and
// every rank browses for the full set.
type EnvParameters struct {
	Hostfile      string        `kong:"help='Server hostfile, one host per shard'"`
	JobName       string        `kong:"help='Job name for zeroconf discovery',default='pannier'"`
	NumServers    int           `kong:"help='Server count when discovering via zeroconf',default='0'"`
	BasePort      int           `kong:"help='First fabric TCP port. Shard s listens on base+s',default='9600'"`
	BarrierPort   int           `kong:"help='TCP port for the bootstrap barrier',default='9599'"`
	DiscoveryWait time.Duration `kong:"help='How long to browse for servers when no hostfile is given',default='2s'"`
}

// EnvRuntime is a Runtime for jobs launched by MPI, Slurm or equivalent:
// rank and size come from the environment, the server list from a hostfile
// or zeroconf, and the barrier runs over TCP with rank 0 coordinating. Rank
// 0 is assumed to run on the first server host.
type EnvRuntime struct {
	rank      int
	size      int
	servers   []string
	barrier   *tcpBarrier
	announcer *ZeroconfDirectory
}

// NewEnvRuntime builds the runtime from the environment.
func NewEnvRuntime(p EnvParameters) (*EnvRuntime, error) {
	rank, ok := intFromEnv(rankVars)
	if !ok {
		return nil, fmt.Errorf("bootstrap: no rank in environment (tried %v)", rankVars)
	}
	size, ok := intFromEnv(sizeVars)
	if !ok {
		return nil, fmt.Errorf("bootstrap: no job size in environment (tried %v)", sizeVars)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("bootstrap: rank %d outside [0,%d)", rank, size)
	}

	var servers []string
	var announcer *ZeroconfDirectory
	var err error
	if p.Hostfile != "" {
		servers, err = ReadHostfile(p.Hostfile)
	} else {
		// Ranks 0..NumServers-1 host shard rank; they announce before
		// everyone browses so the browse can see the full set.
		if p.NumServers < 1 {
			return nil, fmt.Errorf("bootstrap: zeroconf discovery needs a positive server count, got %d", p.NumServers)
		}
		if rank < p.NumServers {
			announcer = NewZeroconfDirectory(p.JobName)
			if err := announcer.AnnounceShard(rank, p.BasePort+rank); err != nil {
				return nil, err
			}
		}
		servers, err = DiscoverServers(p.JobName, p.DiscoveryWait)
		if err == nil && len(servers) != p.NumServers {
			err = fmt.Errorf("bootstrap: discovered %d servers, expected %d", len(servers), p.NumServers)
		}
	}
	if err != nil {
		if announcer != nil {
			announcer.Shutdown()
		}
		return nil, err
	}

	endpoint := net.JoinHostPort(servers[0], strconv.Itoa(p.BarrierPort))
	barrier, err := newTCPBarrier(rank, size, endpoint)
	if err != nil {
		if announcer != nil {
			announcer.Shutdown()
		}
		return nil, err
	}
	log.WithFields(log.Fields{
		"rank":    rank,
		"size":    size,
		"servers": len(servers),
	}).Info("Bootstrap runtime ready")
	return &EnvRuntime{rank: rank, size: size, servers: servers, barrier: barrier, announcer: announcer}, nil
}

func (r *EnvRuntime) Rank() int         { return r.rank }
func (r *EnvRuntime) Size() int         { return r.size }
func (r *EnvRuntime) Servers() []string { return r.servers }

func (r *EnvRuntime) Barrier(ctx context.Context) error {
	return r.barrier.Await(ctx)
}

// Close withdraws the zeroconf announcement (if any) and releases the
// barrier coordinator's listener.
func (r *EnvRuntime) Close() {
	if r.announcer != nil {
		r.announcer.Shutdown()
	}
	r.barrier.Close()
}

func intFromEnv(names []string) (int, bool) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			return n, true
		}
	}
	return 0, false
}
