// Package bootstrap adapts the surrounding parallel-launch runtime: rank and
// size of the job, the collective barrier that sequences collection
// construction, and discovery of the server host list.
package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Runtime exposes the collective primitives of the launch environment. The
// containers use exactly two barriers per construction: one after the
// servers bind their handlers, one after the clients attach. Both are
// load-bearing; operations may only be issued after the second.
type Runtime interface {
	// Rank is this participant's index in [0, Size).
	Rank() int

	// Size is the number of participants in the job.
	Size() int

	// Barrier blocks until every participant has entered it.
	Barrier(ctx context.Context) error

	// Servers is the host list, one entry per shard, identical on every
	// participant.
	Servers() []string
}

// ReadHostfile parses a hostfile into a server list: one host per line,
// blank lines and #-comments ignored. Trailing per-host attributes in the
// MPI style ("host slots=4") are dropped.
func ReadHostfile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: hostfile: %w", err)
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, strings.Fields(line)[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bootstrap: hostfile: %w", err)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("bootstrap: hostfile %s lists no hosts", path)
	}
	return hosts, nil
}
