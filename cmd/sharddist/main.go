package main

import (
	"fmt"
	"os"

	"github.com/aclements/go-moremath/stats"
	"github.com/alecthomas/kong"
	"github.com/hpckit/pannier/pkg/sharding"
	"github.com/hpckit/pannier/pkg/wire"
)

// This program shows how evenly the routing hash spreads keys across shards.
// Run it with the planned shard count before launching a job; a lopsided
// distribution here means hot shards later.

var args struct {
	Shards int    `kong:"help='Shard count to simulate',default='8'"`
	Keys   int    `kong:"help='Number of synthetic keys',default='100000'"`
	Prefix string `kong:"help='Prefix for synthetic string keys',default='key'"`
}

func main() {
	kong.Parse(&args)
	if args.Shards < 1 || args.Keys < 1 {
		fmt.Fprintln(os.Stderr, "shards and keys must be positive")
		os.Exit(1)
	}

	shardFn := sharding.NewKeySharder(args.Shards)
	counts := make([]int, args.Shards)
	e := wire.NewEncoder()
	for i := 0; i < args.Keys; i++ {
		e.Reset()
		e.PutString(fmt.Sprintf("%s-%d", args.Prefix, i))
		counts[shardFn(e.Bytes())]++
	}

	sample := stats.Sample{Xs: make([]float64, args.Shards)}
	for i, c := range counts {
		sample.Xs[i] = float64(c)
	}
	min, max := sample.Bounds()

	fmt.Printf("%d keys over %d shards\n", args.Keys, args.Shards)
	fmt.Printf("---------------------------------\n")
	for i, c := range counts {
		fmt.Printf("  shard %3d: %7d keys\n", i, c)
	}
	fmt.Printf("---------------------------------\n")
	fmt.Printf("  mean   %10.1f\n", sample.Mean())
	fmt.Printf("  stddev %10.1f\n", sample.StdDev())
	fmt.Printf("  min    %10.0f\n", min)
	fmt.Printf("  max    %10.0f\n", max)
}
