package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Resharding metrics
	ReshardingInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flatshard_resharding_in_progress",
			Help: "Whether any tracked shard's persisted flat storage status is a resharding status (1 = yes)",
		},
	)

	ReshardingBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_resharding_batches_total",
			Help: "Total number of batches committed across all split tasks",
		},
	)

	ReshardingBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flatshard_resharding_batch_duration_seconds",
			Help:    "Time taken to drain and commit one split batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReshardingOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flatshard_resharding_outcomes_total",
			Help: "Total split tasks completed by outcome",
		},
		[]string{"outcome"}, // successful, failed, cancelled
	)

	ReshardingKeysRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flatshard_resharding_keys_routed_total",
			Help: "Total keys routed during a split, by routing decision",
		},
		[]string{"decision"}, // to_child, to_both, to_left
	)

	// Flat store metrics
	FlatStoreReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flatshard_flatstore_read_duration_seconds",
			Help:    "Flat store read duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // get_status, iter, get_delta
	)

	FlatStoreCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flatshard_flatstore_commit_duration_seconds",
			Help:    "Time taken to commit a flat store batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Witness metrics
	WitnessPartsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_witness_parts_sent_total",
			Help: "Total witness parts sent to validators",
		},
	)

	WitnessPartsForwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_witness_parts_forwarded_total",
			Help: "Total witness parts forwarded by a part owner",
		},
	)

	WitnessPartsDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flatshard_witness_parts_discarded_total",
			Help: "Total witness parts discarded by validation reason",
		},
		[]string{"reason"},
	)

	WitnessAssemblyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flatshard_witness_assembly_duration_seconds",
			Help:    "Time taken by the part receipt that completes assembly, including decode",
			Buckets: prometheus.DefBuckets,
		},
	)

	WitnessAssembledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_witness_assembled_total",
			Help: "Total witnesses successfully reassembled",
		},
	)

	WitnessAckRTT = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flatshard_witness_ack_rtt_seconds",
			Help:    "Round-trip time from direct-send broadcast to ack receipt",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Contract-deploy metrics
	DeploysAssembledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_deploys_assembled_total",
			Help: "Total contract-deploy part sets successfully reassembled",
		},
	)

	DeploysPrecompileErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_deploys_precompile_errors_total",
			Help: "Total precompilation errors (logged, non-fatal)",
		},
	)

	DeploysPartsForwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_deploys_parts_forwarded_total",
			Help: "Total contract-deploys parts forwarded by a part owner",
		},
	)

	ContractCodeCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatshard_contract_code_cache_misses_total",
			Help: "Total contract code hashes requested that were not already cached",
		},
	)

	// Encoder metrics
	EncoderCacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flatshard_encoder_cache_size",
			Help: "Number of cached Reed-Solomon encoders by pipeline",
		},
		[]string{"pipeline"}, // witness, deploys
	)

	EncodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flatshard_encode_duration_seconds",
			Help:    "Time taken to compress and erasure-code a payload",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)
)

func init() {
	prometheus.MustRegister(ReshardingInProgress)
	prometheus.MustRegister(ReshardingBatchesTotal)
	prometheus.MustRegister(ReshardingBatchDuration)
	prometheus.MustRegister(ReshardingOutcomesTotal)
	prometheus.MustRegister(ReshardingKeysRoutedTotal)

	prometheus.MustRegister(FlatStoreReadDuration)
	prometheus.MustRegister(FlatStoreCommitDuration)

	prometheus.MustRegister(WitnessPartsSentTotal)
	prometheus.MustRegister(WitnessPartsForwardedTotal)
	prometheus.MustRegister(WitnessPartsDiscardedTotal)
	prometheus.MustRegister(WitnessAssemblyDuration)
	prometheus.MustRegister(WitnessAssembledTotal)
	prometheus.MustRegister(WitnessAckRTT)

	prometheus.MustRegister(DeploysAssembledTotal)
	prometheus.MustRegister(DeploysPrecompileErrorsTotal)
	prometheus.MustRegister(DeploysPartsForwardedTotal)
	prometheus.MustRegister(ContractCodeCacheMisses)

	prometheus.MustRegister(EncoderCacheSize)
	prometheus.MustRegister(EncodeDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
