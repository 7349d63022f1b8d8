package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimsPrepared tracks issued claim authorizations per chain
	ClaimsPrepared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_claims_prepared_total",
			Help: "Total number of claim authorizations issued",
		},
		[]string{"chain"},
	)

	// ClaimPrepareErrors tracks prepare failures by error class
	ClaimPrepareErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_claim_prepare_errors_total",
			Help: "Total number of failed claim preparations",
		},
		[]string{"chain", "class"},
	)

	// EventsApplied tracks successfully applied on-chain events
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_events_applied_total",
			Help: "Total number of on-chain events applied",
		},
		[]string{"chain", "type"},
	)

	// EventsDeduplicated tracks events short-circuited by the ledger
	EventsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_events_deduplicated_total",
			Help: "Total number of events skipped as already processed",
		},
		[]string{"chain", "type"},
	)

	// EventApplyFailures tracks apply failures routed to the retry queue
	EventApplyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_event_apply_failures_total",
			Help: "Total number of event applications that failed",
		},
		[]string{"chain", "type"},
	)

	// RetryQueueDepth tracks pending retry queue entries per chain
	RetryQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "claimgate_retry_queue_depth",
			Help: "Number of pending retry queue entries",
		},
		[]string{"chain"},
	)

	// RetryDeadTotal tracks entries moved to the dead-letter state
	RetryDeadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_retry_dead_total",
			Help: "Total number of retry entries dead-lettered",
		},
		[]string{"chain"},
	)

	// RPCCallsTotal tracks RPC calls per endpoint and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"endpoint", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per endpoint and method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimgate_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"endpoint", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "claimgate_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// PollerCursor tracks the last scanned block per chain
	PollerCursor = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "claimgate_poller_cursor_block",
			Help: "Last block scanned for events",
		},
		[]string{"chain"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "claimgate_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)
)
