/*
Package log provides structured logging for flatshard using zerolog.

It wraps zerolog with a package-level Logger, an Init(Config) that
switches between JSON and console writers, and a small set of
context-logger helpers so long-running components don't have to thread
a logger through every call.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	splitLog := log.WithComponent("split-engine")
	splitLog.Info().Msg("split task started")

	shardLog := log.WithShard(shardUID.String())
	shardLog.Warn().Err(err).Msg("batch commit retried")

	witnessLog := log.WithProductionKey(epochID, shardID, heightCreated)
	witnessLog.Debug().Int("parts_received", n).Msg("assembly progress")

Component loggers are created once per long-running loop (the split
task, the witness actor, the deploys tracker) and carry their context
fields through every subsequent log line, matching how the scheduler
and reconciler loops scope their own logs.
*/
package log
