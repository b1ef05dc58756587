package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksBackfilled tracks total blocks fetched per network and data type
	BlocksBackfilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfill_blocks_backfilled_total",
			Help: "Total number of blocks backfilled",
		},
		[]string{"network", "data_type"},
	)

	// RangesFinalized tracks plan sub-ranges fetched to completion
	RangesFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfill_ranges_finalized_total",
			Help: "Total number of plan sub-ranges finalized",
		},
		[]string{"network", "data_type"},
	)

	// RangesFailed tracks plan sub-ranges that stopped partway
	RangesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfill_ranges_failed_total",
			Help: "Total number of plan sub-ranges that failed",
		},
		[]string{"network", "data_type"},
	)

	// RPCCallsTotal tracks RPC calls per network and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfill_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"network", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per network and method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainfill_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"network", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainfill_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "method"},
	)

	// ChainHeadBlock tracks the latest known head per network
	ChainHeadBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainfill_chain_head_block",
			Help: "Latest known head block height of the network",
		},
		[]string{"network"},
	)

	// BackfillProgressBlock tracks the highest block reached by the running
	// backfill
	BackfillProgressBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainfill_backfill_progress_block",
			Help: "Highest block reached by the running backfill",
		},
		[]string{"network", "data_type"},
	)
)
