package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/flatshard/pkg/config"
	"github.com/cuemby/flatshard/pkg/deploys"
	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/cuemby/flatshard/pkg/node"
	"github.com/cuemby/flatshard/pkg/schedulerbridge"
	"github.com/cuemby/flatshard/pkg/signing"
	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/cuemby/flatshard/pkg/witness"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a long-lived node over the flat store, exposing metrics and health endpoints",
	Long: `serve wires a full node (split engine, witness pipeline, deploys
pipeline, contract-code cache) over one data directory. Peer transport,
chain tracking, and validator signing are boundaries this module leaves
to the embedding deployment (see pkg/network, pkg/chainlookup and
pkg/signing); serve fills them with loopback/self-only stand-ins so the
wiring can be exercised standalone.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("data-dir", "", "flat store data directory (required)")
	serveCmd.Flags().String("node-id", "node-0", "this node's validator/peer id")
	serveCmd.Flags().String("config", "", "path to a YAML config file (defaults applied if omitted)")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for the metrics/health HTTP server")
	serveCmd.Flags().Int("compilation-workers", 4, "contract-deploys precompilation pool size")
	serveCmd.Flags().Int("contract-code-cache-size", 4096, "compiled-contract LRU cache size")
	serveCmd.Flags().StringSlice("validators", []string{"node-0"}, "ordered validator set this node sees")
	serveCmd.Flags().String("track-shards", "", "comma-separated version:shard_id pairs to sample for the resharding-in-progress gauge")
	serveCmd.MarkFlagRequired("data-dir")
}

// parseShardList parses "version:id,version:id" into ShardUIDs for the
// metrics collector's sampling set.
func parseShardList(csv string) []flatstate.ShardUID {
	var out []flatstate.ShardUID
	for _, pair := range splitCSV(csv) {
		var version uint32
		var id uint64
		if _, err := fmt.Sscanf(pair, "%d:%d", &version, &id); err == nil {
			out = append(out, flatstate.ShardUID{LayoutVersion: version, ShardID: id})
		}
	}
	return out
}

type staticProducerLookup struct{ ids []string }

func (s staticProducerLookup) ProducersFor(wire.ProductionKey) ([]string, error) { return s.ids, nil }

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	nodeID, _ := cmd.Flags().GetString("node-id")
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	workers, _ := cmd.Flags().GetInt("compilation-workers")
	cacheSize, _ := cmd.Flags().GetInt("contract-code-cache-size")
	validators, _ := cmd.Flags().GetStringSlice("validators")

	pipelineCfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		pipelineCfg = loaded
	}

	signer := signing.Fake{ValidatorID: nodeID}
	deps := node.Deps{
		Chain:           staticChainReader{},
		Sender:          loggingSender{},
		Signer:          signer,
		Verifier:        signer,
		ValidatorLookup: witness.StaticValidatorSet{Validators: validators},
		ProducerLookup:  staticProducerLookup{ids: validators},
		Compiler: deploys.CompilerFunc(func(_ context.Context, epochID string, contracts [][]byte) error {
			fmt.Printf("precompiled %d contract(s) for epoch %s\n", len(contracts), epochID)
			return nil
		}),
		Runner: schedulerbridge.GoroutineRunner{},
	}

	n, err := node.New(node.Config{
		NodeID:                nodeID,
		DataDir:               dataDir,
		CompilationWorkers:    workers,
		ContractCodeCacheSize: cacheSize,
	}, pipelineCfg, deps)
	if err != nil {
		return fmt.Errorf("building node: %w", err)
	}
	defer n.Close()

	trackShardsCSV, _ := cmd.Flags().GetString("track-shards")
	collector := metrics.NewCollector(n.Store(), parseShardList(trackShardsCSV))
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("flatstore", true, "ready")
	metrics.RegisterComponent("node", true, "ready")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("node %s serving; metrics at http://%s/metrics\n", nodeID, metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nshutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
	}

	return srv.Shutdown(context.Background())
}
