// Package container provides the sharded container façades. A collection is
// partitioned over N shard servers; a handle routes each operation to the
// shard that owns it, executing locally when this process hosts that shard.
package container

import (
	"errors"
	"fmt"
)

// Config identifies one participant's view of a collection. Every
// participant in the job must construct the collection with the same Name
// and NumShards; construction is collective and bracketed by two bootstrap
// barriers.
//
// The struct uses annotations from Kong (https://github.com/alecthomas/kong)
// so binaries can embed it.
type Config struct {
	Name         string `kong:"help='Collection name, unique per job'"`
	IsServer     bool   `kong:"help='Host a shard of this collection',default='false'"`
	MyShard      int    `kong:"help='Shard id owned by this process',default='0'"`
	NumShards    int    `kong:"help='Total shard count',default='1'"`
	ServerOnNode bool   `kong:"help='Invoke the local shard in-process instead of via RPC',default='true'"`
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("container: empty collection name")
	}
	if c.NumShards < 1 {
		return fmt.Errorf("container: %s: shard count %d < 1", c.Name, c.NumShards)
	}
	if c.MyShard < 0 || c.MyShard >= c.NumShards {
		return fmt.Errorf("container: %s: shard %d outside [0,%d)", c.Name, c.MyShard, c.NumShards)
	}
	return nil
}
