// Command flatshard is the operator CLI over the flat storage resharder
// and the witness/contract-deploys distribution pipelines: one-shot
// administrative commands (start/resume/inspect a shard split) plus a
// serve mode that stands up the metrics and health endpoints alongside
// a long-running node, the way the teacher's warren binary wraps its
// manager in a single cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/flatshard/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flatshard",
	Short: "flatshard - flat storage resharding and witness distribution node",
	Long: `flatshard drives the batched-copy flat storage resharder and the
partial-witness / contract-deploys distribution pipelines for one
shard-tracking node.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"flatshard version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)
	registerDefaultAccountParsers()

	rootCmd.AddCommand(reshardCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
