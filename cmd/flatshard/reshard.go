package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/flatshard/pkg/config"
	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/flatstore"
	"github.com/cuemby/flatshard/pkg/resharding"
	"github.com/cuemby/flatshard/pkg/schedulerbridge"
	"github.com/spf13/cobra"
)

var reshardCmd = &cobra.Command{
	Use:   "reshard",
	Short: "Inspect and drive the flat storage split engine for one shard",
}

func init() {
	reshardCmd.PersistentFlags().String("data-dir", "", "flat store data directory (required)")
	reshardCmd.MarkPersistentFlagRequired("data-dir")

	reshardStartCmd.Flags().Uint32("layout-version", 0, "parent shard's layout version")
	reshardStartCmd.Flags().Uint64("parent-shard", 0, "parent shard id")
	reshardStartCmd.Flags().Uint32("new-layout-version", 0, "child layout version")
	reshardStartCmd.Flags().Uint64("left-shard", 0, "left child shard id")
	reshardStartCmd.Flags().Uint64("right-shard", 0, "right child shard id")
	reshardStartCmd.Flags().String("boundary-account", "", "account id at which keys split left/right (required)")
	reshardStartCmd.Flags().String("block-hash", "", "resharding block hash (required)")
	reshardStartCmd.Flags().String("prev-block-hash", "", "resharding block's parent hash (required)")
	reshardStartCmd.Flags().String("ascending-hashes", "", "comma-separated block hashes from the parent's flat head (exclusive) to the resharding block (inclusive)")
	reshardStartCmd.Flags().Int("batch-size", 0, "override config's batch_size for this run")
	reshardStartCmd.MarkFlagRequired("boundary-account")
	reshardStartCmd.MarkFlagRequired("block-hash")
	reshardStartCmd.MarkFlagRequired("prev-block-hash")

	reshardStatusCmd.Flags().Uint32("layout-version", 0, "shard's layout version")
	reshardStatusCmd.Flags().Uint64("shard", 0, "shard id")

	reshardResumeCmd.Flags().Uint32("layout-version", 0, "parent shard's layout version")
	reshardResumeCmd.Flags().Uint64("parent-shard", 0, "parent shard id")
	reshardResumeCmd.Flags().Uint32("new-layout-version", 0, "child layout version")
	reshardResumeCmd.Flags().String("boundary-account", "", "account id at which keys split left/right (required, must match the original split)")
	reshardResumeCmd.MarkFlagRequired("boundary-account")

	reshardCmd.AddCommand(reshardStartCmd, reshardStatusCmd, reshardResumeCmd)
}

func openEngine(cmd *cobra.Command) (flatstore.Store, *resharding.Engine, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := flatstore.NewBoltStore(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening flat store: %w", err)
	}

	hashesCSV, _ := cmd.Flags().GetString("ascending-hashes")
	chain := staticChainReader{hashes: splitCSV(hashesCSV)}

	cfg := config.Default()
	if batchSize, _ := cmd.Flags().GetInt("batch-size"); batchSize > 0 {
		cfg.BatchSizeBytes = batchSize
	}

	controller := resharding.NewController()
	engine := resharding.New(store, controller, chain, resharding.Config{
		BatchSizeBytes: cfg.BatchSizeBytes,
		BatchDelay:     cfg.BatchDelay,
	})
	return store, engine, nil
}

var reshardStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start splitting a shard; blocks until the split finishes, fails, or is interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		layoutVersion, _ := cmd.Flags().GetUint32("layout-version")
		parentShardID, _ := cmd.Flags().GetUint64("parent-shard")
		newLayoutVersion, _ := cmd.Flags().GetUint32("new-layout-version")
		leftShardID, _ := cmd.Flags().GetUint64("left-shard")
		rightShardID, _ := cmd.Flags().GetUint64("right-shard")
		boundary, _ := cmd.Flags().GetString("boundary-account")
		blockHash, _ := cmd.Flags().GetString("block-hash")
		prevBlockHash, _ := cmd.Flags().GetString("prev-block-hash")

		layout := boundaryLayout{version: newLayoutVersion, boundary: boundary, left: leftShardID, right: rightShardID}
		event := resharding.Event{
			ParentShard:   flatstate.ShardUID{LayoutVersion: layoutVersion, ShardID: parentShardID},
			LeftChild:     layout.ShardUID(leftShardID),
			RightChild:    layout.ShardUID(rightShardID),
			BlockHash:     blockHash,
			PrevBlockHash: prevBlockHash,
			NewLayout:     layout,
		}

		// SyncRunner makes Start block until the batched copy finishes, so
		// a one-shot CLI invocation reports the true outcome.
		bridge := schedulerbridge.New(schedulerbridge.SyncRunner{})
		if err := engine.Start(event, bridge); err != nil {
			return fmt.Errorf("starting split: %w", err)
		}

		fmt.Println("split task finished; inspect shard status for the outcome")
		return nil
	},
}

var reshardResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted split found in a shard's on-disk status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		layoutVersion, _ := cmd.Flags().GetUint32("layout-version")
		parentShardID, _ := cmd.Flags().GetUint64("parent-shard")
		newLayoutVersion, _ := cmd.Flags().GetUint32("new-layout-version")
		boundary, _ := cmd.Flags().GetString("boundary-account")

		shard := flatstate.ShardUID{LayoutVersion: layoutVersion, ShardID: parentShardID}
		status, err := store.GetStatus(shard)
		if err != nil {
			return fmt.Errorf("reading status: %w", err)
		}
		if status.Kind != flatstate.StatusSplittingParent {
			return fmt.Errorf("shard %s is not mid-split (status %q)", shard, status.Kind)
		}

		layout := boundaryLayout{
			version:  newLayoutVersion,
			boundary: boundary,
			left:     status.Splitting.LeftChild.ShardID,
			right:    status.Splitting.RightChild.ShardID,
		}

		bridge := schedulerbridge.New(schedulerbridge.SyncRunner{})
		if err := engine.Resume(shard, status, layout, bridge); err != nil {
			return fmt.Errorf("resuming split: %w", err)
		}

		fmt.Println("resumed split task finished; inspect shard status for the outcome")
		return nil
	},
}

var reshardStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a shard's persisted flat storage status as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		store, err := flatstore.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("opening flat store: %w", err)
		}
		defer store.Close()

		layoutVersion, _ := cmd.Flags().GetUint32("layout-version")
		shardID, _ := cmd.Flags().GetUint64("shard")
		status, err := store.GetStatus(flatstate.ShardUID{LayoutVersion: layoutVersion, ShardID: shardID})
		if err != nil {
			return fmt.Errorf("reading status: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}
