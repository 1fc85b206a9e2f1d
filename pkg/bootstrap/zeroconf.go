package bootstrap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// This is a zeroconf setup for jobs without a hostfile. Server ranks
// announce their shard in mDNS on startup which lets client ranks build the
// server list without shared configuration.
//
// This won't work for Kubernetes or AWS/GCP/Azure since they have no
// support for UDP broadcasts; supply a hostfile there.

const serviceString = "_pannier._udp"

const defaultDomain = "local."

var txtRecords = []string{"txtv=0", "name=pannier shard server"}

// ZeroconfDirectory announces shard servers via mDNS/Zeroconf/Bonjour until
// Shutdown() is called.
type ZeroconfDirectory struct {
	mutex   *sync.Mutex
	servers map[string]*zeroconf.Server
	JobName string
}

// NewZeroconfDirectory creates a new zeroconf announcer for the job.
func NewZeroconfDirectory(jobName string) *ZeroconfDirectory {
	return &ZeroconfDirectory{
		mutex:   &sync.Mutex{},
		servers: make(map[string]*zeroconf.Server),
		JobName: jobName,
	}
}

// AnnounceShard registers a shard's RPC endpoint. Each shard can be
// announced once per process.
func (zd *ZeroconfDirectory) AnnounceShard(shard, port int) error {
	zd.mutex.Lock()
	defer zd.mutex.Unlock()
	entry := instanceName(zd.JobName, shard)
	if _, ok := zd.servers[entry]; ok {
		return fmt.Errorf("bootstrap: shard %d already announced", shard)
	}
	server, err := zeroconf.Register(entry, serviceString, defaultDomain, port, txtRecords, nil)
	if err != nil {
		return err
	}
	zd.servers[entry] = server
	return nil
}

// Shutdown withdraws all announcements.
func (zd *ZeroconfDirectory) Shutdown() {
	zd.mutex.Lock()
	defer zd.mutex.Unlock()
	for k, v := range zd.servers {
		v.Shutdown()
		delete(zd.servers, k)
	}
}

// DiscoverServers browses mDNS for the job's shard announcements and builds
// the server list in shard order. The list must be dense: a missing shard id
// is an error, since routing depends on every entry.
func DiscoverServers(jobName string, waitTime time.Duration) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func(entries chan *zeroconf.ServiceEntry) {
		ctx, cancel := context.WithTimeout(context.Background(), waitTime)
		defer cancel()
		if err := resolver.Browse(ctx, serviceString, defaultDomain, entries); err != nil {
			close(entries)
			return
		}
		<-ctx.Done()
	}(entries)

	hosts := make(map[int]string)
	prefix := jobName + "_shard_"
	for entry := range entries {
		if entry.Service != serviceString || !strings.HasPrefix(entry.Instance, prefix) {
			continue
		}
		shard, err := strconv.Atoi(strings.TrimPrefix(entry.Instance, prefix))
		if err != nil || len(entry.AddrIPv4) == 0 {
			continue
		}
		hosts[shard] = entry.AddrIPv4[0].String()
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("bootstrap: no servers announced for job %q", jobName)
	}

	servers := make([]string, len(hosts))
	for shard := range servers {
		host, ok := hosts[shard]
		if !ok {
			return nil, fmt.Errorf("bootstrap: shard %d missing from zeroconf announcements", shard)
		}
		servers[shard] = host
	}
	return servers, nil
}

func instanceName(jobName string, shard int) string {
	return fmt.Sprintf("%s_shard_%d", jobName, shard)
}
