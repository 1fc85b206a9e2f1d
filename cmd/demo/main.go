package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
	gotoolbox "github.com/lab5e/gotoolbox/toolbox"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/hpckit/pannier/pkg/bootstrap"
	"github.com/hpckit/pannier/pkg/container"
	"github.com/hpckit/pannier/pkg/shardrpc"
	"github.com/hpckit/pannier/pkg/wire"
)

// Demo rank for a pannier job. Launch one instance per rank, e.g. under
// mpirun with a hostfile, or by hand with PANNIER_RANK/PANNIER_SIZE set. The
// first len(servers) ranks host a shard each; the rest join as clients.

type parameters struct {
	Env             bootstrap.EnvParameters `kong:"embed"`
	Metrics         string                  `kong:"help='Metrics sink',enum='prometheus,none',default='none'"`
	MetricsEndpoint string                  `kong:"help='Listen address for /metrics',default=':9700'"`
	Requests        int                     `kong:"help='Number of map entries to write per rank',default='100'"`
	Log             gotoolbox.LogParameters `kong:"embed,prefix='log-'"`
}

func main() {
	var config parameters
	k, err := kong.New(&config, kong.Name("demo"),
		kong.Description("Sharded container demo rank"),
		kong.UsageOnError())
	if err != nil {
		panic(err)
	}
	if _, err := k.Parse(os.Args[1:]); err != nil {
		k.FatalIfErrorf(err)
		return
	}
	gotoolbox.InitLogs("demo", config.Log)

	ctx := context.Background()

	rt, err := bootstrap.NewEnvRuntime(config.Env)
	if err != nil {
		log.WithError(err).Fatal("Unable to build bootstrap runtime")
	}
	defer rt.Close()

	servers := rt.Servers()
	isServer := rt.Rank() < len(servers)
	myShard := 0
	if isServer {
		myShard = rt.Rank()
	}

	fabric, err := shardrpc.Init(shardrpc.Parameters{
		Servers:    servers,
		BasePort:   config.Env.BasePort,
		LocalShard: myShard,
		IsServer:   isServer,
		Metrics:    config.Metrics,
	})
	if err != nil {
		log.WithError(err).Fatal("Unable to initialise the fabric")
	}
	defer shardrpc.ShutdownProcess()

	if config.Metrics == shardrpc.PrometheusSink {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(config.MetricsEndpoint, nil); err != nil {
				log.WithError(err).Error("Metrics endpoint stopped")
			}
		}()
	}

	cfg := container.Config{
		Name:         "demo.scratch",
		IsServer:     isServer,
		MyShard:      myShard,
		NumShards:    len(servers),
		ServerOnNode: true,
	}
	scratch, err := container.NewHashMap(ctx, cfg, rt, fabric, wire.Uint64(), wire.String())
	if err != nil {
		log.WithError(err).Fatal("Unable to construct the scratch map")
	}
	defer scratch.Close()

	workCfg := cfg
	workCfg.Name = "demo.work"
	work, err := container.NewPriorityQueue(ctx, workCfg, rt, fabric, wire.Int64(),
		func(a, b int64) bool { return a < b })
	if err != nil {
		log.WithError(err).Fatal("Unable to construct the work queue")
	}
	defer work.Close()

	// Phase 1: every rank writes its own key range and pushes its rank as a
	// work item on shard 0.
	for i := 0; i < config.Requests; i++ {
		key := uint64(rt.Rank())*1_000_000 + uint64(i)
		value := fmt.Sprintf("rank%d-%d", rt.Rank(), i)
		if err := scratch.Put(ctx, key, value); err != nil {
			log.WithError(err).WithField("key", key).Fatal("Put failed")
		}
	}
	if err := work.Push(ctx, int64(rt.Rank()), 0); err != nil {
		log.WithError(err).Fatal("Push failed")
	}
	if err := rt.Barrier(ctx); err != nil {
		log.WithError(err).Fatal("Barrier failed")
	}

	// Phase 2: rank 0 inspects the aggregate state.
	if rt.Rank() == 0 {
		all, err := scratch.GetAllData(ctx)
		if err != nil {
			log.WithError(err).Fatal("GetAllData failed")
		}
		log.WithFields(log.Fields{
			"entries":  len(all),
			"expected": config.Requests * rt.Size(),
		}).Info("Scratch map populated")

		drained := 0
		for {
			rank, ok, err := work.Pop(ctx, 0)
			if err != nil {
				log.WithError(err).Fatal("Pop failed")
			}
			if !ok {
				break
			}
			drained++
			log.WithField("rank", rank).Debug("Drained work item")
		}
		log.WithField("items", drained).Info("Work queue drained")
	}

	if err := rt.Barrier(ctx); err != nil {
		log.WithError(err).Fatal("Final barrier failed")
	}
	log.Info("Demo rank done")
}
