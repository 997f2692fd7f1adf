/*
Package metrics provides Prometheus metrics collection and exposition
for flatshard.

It defines and registers every metric using the Prometheus client
library, covering the resharding pipeline (batches, outcomes, routing
decisions), the flat store (read/commit latency), and the witness and
contract-deploy pipelines (parts sent/forwarded/discarded, assembly
latency, ack RTT, encoder cache occupancy). Metrics are exposed via
Handler() for scraping, and health/readiness state is tracked
separately through RegisterComponent/GetHealth/GetReadiness.

# Usage

	timer := metrics.NewTimer()
	// ... commit a batch ...
	timer.ObserveDuration(metrics.ReshardingBatchDuration)
	metrics.ReshardingBatchesTotal.Inc()

	metrics.RegisterComponent("resharder", true, "")
	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())

A Collector samples shard status from the flat store on a ticker, so
ReshardingInProgress stays current even when no split is actively
writing to the store.
*/
package metrics
