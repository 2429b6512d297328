package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger metrics
	eventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_applied_total",
			Help: "Ledger events handled by the updater, by kind and result",
		},
		[]string{"kind", "result"},
	)

	invariantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Events skipped because applying them would break a ledger invariant",
		},
		[]string{"contract", "kind"},
	)

	// Indexing metrics
	lastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_last_processed_block",
			Help: "Last block applied for a contract",
		},
		[]string{"contract"},
	)

	watchedContracts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_watched_contracts",
			Help: "Number of contracts with live subscriptions",
		},
	)

	backfillDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_backfill_duration_seconds",
			Help:    "Time taken by one backfill pass",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 300, 900},
		},
	)

	backfillFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexer_backfill_failures_total",
			Help: "Backfill passes aborted by a store or adapter error",
		},
	)

	pollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_poll_errors_total",
			Help: "Failed live polls by event kind",
		},
		[]string{"kind"},
	)

	updateQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_update_queue_depth",
			Help: "Decoded events waiting for the applier",
		},
	)

	// Mirror metrics
	mirrorWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_writes_total",
			Help: "Operations replayed against the mirror store, by result",
		},
		[]string{"result"},
	)

	mirrorDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_dropped_total",
			Help: "Operations dropped because the mirror queue was full",
		},
	)

	mirrorQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_queue_depth",
			Help: "Operations waiting to be written to the mirror store",
		},
	)

	// RPC metrics
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total number of RPC requests by method",
		},
		[]string{"method"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_retries_total",
			Help: "RPC attempts repeated after a retryable error",
		},
		[]string{"method"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_request_duration_seconds",
			Help:    "Duration of RPC requests including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Results recorded for applied events and mirror writes
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultSkipped   = "skipped"
	ResultError     = "error"
	ResultOK        = "ok"
)

func EventApplied(kind, result string) {
	eventsApplied.WithLabelValues(kind, result).Inc()
}

func InvariantViolation(contract, kind string) {
	invariantViolations.WithLabelValues(contract, kind).Inc()
}

func LastProcessedBlock(contract string, block int64) {
	lastProcessedBlock.WithLabelValues(contract).Set(float64(block))
}

func WatchedContracts(n int) {
	watchedContracts.Set(float64(n))
}

func BackfillDuration(d time.Duration) {
	backfillDuration.Observe(d.Seconds())
}

func BackfillFailed() {
	backfillFailures.Inc()
}

func PollError(kind string) {
	pollErrors.WithLabelValues(kind).Inc()
}

func UpdateQueueDepth(n int) {
	updateQueueDepth.Set(float64(n))
}

func MirrorWrite(result string) {
	mirrorWrites.WithLabelValues(result).Inc()
}

func MirrorDropped() {
	mirrorDropped.Inc()
}

func MirrorQueueDepth(n int) {
	mirrorQueueDepth.Set(float64(n))
}

func RPCMethodInc(method string) {
	rpcRequests.WithLabelValues(method).Inc()
}

func RPCRetryInc(method string) {
	rpcRetries.WithLabelValues(method).Inc()
}

func RPCMethodDuration(method string, d time.Duration) {
	rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}
