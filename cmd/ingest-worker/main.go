package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/rkhandel/distgraph/internal/config"
	"github.com/rkhandel/distgraph/internal/logging"
	"github.com/rkhandel/distgraph/internal/partition"
	"github.com/rkhandel/distgraph/internal/topology"
	"github.com/rkhandel/distgraph/internal/transport/grpcremote"
	"github.com/rkhandel/distgraph/internal/transport/local"

	"github.com/rkhandel/distgraph"
)

const (
	exitOK        = 0
	exitTransport = 1
	exitInvariant = 2
)

var (
	clusterConfigFile = flag.String("cluster-config", "", "Path to cluster config YAML (optional)")
	edgeFile          = flag.String("edges", "", "Path to a space-separated edge list file (this process's shard)")
	localDemo         = flag.Int("local-demo", 0, "Run N simulated processes in this binary instead of using SPAWNID/SPAWNNODES (0 disables)")
)

func main() {
	flag.Parse()

	if *localDemo > 0 {
		runLocalDemo(*localDemo)
		return
	}

	os.Exit(runRemote())
}

// runRemote bootstraps one real cluster process from the environment and
// runs a single ingest-and-finalize pass.
func runRemote() int {
	cfg := &config.ClusterConfig{}
	var err error
	if *clusterConfigFile != "" {
		cfg, err = config.Load(*clusterConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest-worker: load cluster config: %v\n", err)
			return exitTransport
		}
	} else if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest-worker: default cluster config: %v\n", err)
		return exitTransport
	}

	env, err := topology.LoadClusterEnv(cfg.Wrap, cfg.Dims)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest-worker: %v\n", err)
		return exitTransport
	}
	logger := logging.New(env.SelfPid)

	policy, err := buildPolicy(cfg, env.Table)
	if err != nil {
		logger.Errorf("build policy: %v", err)
		return exitInvariant
	}

	ctx := context.Background()
	tr, closer, err := grpcremote.NewTransport(ctx, env)
	if err != nil {
		logger.Errorf("connect transport: %v", err)
		return exitTransport
	}
	defer closer.Close()

	ingress := distgraph.New[uint64, uint64](tr, env.Table, policy)
	installCombiner(ingress, cfg.Combiner)

	if *edgeFile != "" {
		if err := loadEdgesInto(ingress, *edgeFile); err != nil {
			logger.Errorf("load edge shard: %v", err)
			return exitInvariant
		}
	}

	res, err := ingress.Finalize(ctx)
	if err != nil {
		logger.Errorf("finalize: %v", err)
		return exitTransport
	}

	logger.Infof("finalize complete: edges=%d vertices=%d replicas=%d masters_here=%d",
		res.NumEdgesGlobal, res.NumVerticesGlobal, res.NumReplicasGlobal, countMasters(res))
	return exitOK
}

// runLocalDemo simulates n processes inside this one binary over
// internal/transport/local, the way the teacher's multi-worker-test drives
// several simulated workers from a single process.
func runLocalDemo(n int) {
	table, err := topology.NewTable(nil, n, topology.DefaultWrap, topology.DefaultDims)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest-worker: %v\n", err)
		os.Exit(exitInvariant)
	}
	cluster := local.NewCluster(n)

	triangle := [][2]uint64{{1, 2}, {2, 3}, {3, 1}}

	var wg sync.WaitGroup
	results := make([]*distgraph.Result[uint64], n)
	errs := make([]error, n)

	for pid := 0; pid < n; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			logger := logging.New(pid)
			tr := cluster.Transport(pid)
			ingress := distgraph.New[uint64, uint64](tr, table, partition.NewRandom())

			state := partition.NewState(n)
			for _, e := range triangle {
				if state.Place(partition.NewRandom(), e[0], e[1]) == pid {
					if err := ingress.AddEdge(e[0], e[1], 1); err != nil {
						errs[pid] = err
						return
					}
				}
			}

			res, err := ingress.Finalize(context.Background())
			if err != nil {
				errs[pid] = err
				return
			}
			results[pid] = res
			logger.Infof("finalize complete: edges=%d vertices=%d replicas=%d", res.NumEdgesGlobal, res.NumVerticesGlobal, res.NumReplicasGlobal)
		}(pid)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest-worker: local demo: %v\n", err)
			os.Exit(exitInvariant)
		}
	}
}

func countMasters(res *distgraph.Result[uint64]) int {
	n := 0
	for _, v := range res.Vertices {
		if v.IsMaster {
			n++
		}
	}
	return n
}

func buildPolicy(cfg *config.ClusterConfig, table *topology.Table) (partition.Policy, error) {
	kind, err := cfg.PolicyKind()
	if err != nil {
		return nil, err
	}
	opts := cfg.Options()
	switch kind {
	case partition.Random:
		return partition.NewRandom(), nil
	case partition.Greedy:
		return partition.NewGreedy(opts), nil
	case partition.GreedyTopology:
		return partition.NewGreedyTopology(partition.NewTopologyScorer(table), table.NumProcs(), opts), nil
	case partition.HDRF:
		return partition.NewHDRF(opts), nil
	default:
		return nil, fmt.Errorf("unhandled policy kind %v", kind)
	}
}

// installCombiner wires the config's named duplicate-vertex strategy into
// the ingress, over uint64 payloads (the numeric combiner testing convention
// of SPEC_FULL.md §6).
func installCombiner(ingress *distgraph.Ingress[uint64, uint64], name string) {
	switch name {
	case "", "overwrite":
		return // Ingress defaults to overwrite already.
	case "max":
		ingress.SetDuplicateVertexStrategy(func(existing, incoming uint64) uint64 {
			if incoming > existing {
				return incoming
			}
			return existing
		})
	case "min":
		ingress.SetDuplicateVertexStrategy(func(existing, incoming uint64) uint64 {
			if incoming < existing {
				return incoming
			}
			return existing
		})
	case "sum":
		ingress.SetDuplicateVertexStrategy(func(existing, incoming uint64) uint64 {
			return existing + incoming
		})
	}
}

// loadEdgesInto reads a "src dst" edge list whose fields are separated by a
// single space (tabs and repeated spaces are not treated as one separator),
// the same shape algorithms/common.loadEdgeListFromFile reads, and streams
// every edge into ingress. Each process is expected to be handed only its own shard.
func loadEdgesInto(ingress *distgraph.Ingress[uint64, uint64], filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open edge file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = ' '
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read edge file: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		src, err := strconv.ParseUint(record[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid src vertex %q: %w", record[0], err)
		}
		dst, err := strconv.ParseUint(record[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid dst vertex %q: %w", record[1], err)
		}
		if err := ingress.AddEdge(src, dst, 1); err != nil {
			return fmt.Errorf("add edge (%d,%d): %w", src, dst, err)
		}
	}
	return nil
}
