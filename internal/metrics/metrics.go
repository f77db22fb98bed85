// Package metrics exposes Prometheus instrumentation for the resolver
// socket and the orchestration client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesSentTotal counts every message handed to a transport, by
	// transport kind and message opcode.
	QueriesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ahfdns_resolver_queries_sent_total",
		Help: "Total number of messages sent to a DNS server",
	}, []string{"transport", "opcode"})

	// RetriesTotal counts UDP retransmissions triggered by a timeout tick.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ahfdns_resolver_retries_total",
		Help: "Total number of request retransmissions",
	}, []string{"transport"})

	// TimeoutsTotal counts tasks rejected with RequestUnanswered.
	TimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ahfdns_resolver_timeouts_total",
		Help: "Total number of requests that timed out without a matching response",
	}, []string{"transport"})

	// TruncatedFallbacksTotal counts UDP responses with TC=1 that were
	// requeued on TCP.
	TruncatedFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ahfdns_resolver_truncated_fallbacks_total",
		Help: "Total number of UDP responses that fell back to TCP due to truncation",
	})

	// TransportOpensTotal counts successful transport opens.
	TransportOpensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ahfdns_resolver_transport_opens_total",
		Help: "Total number of transport opens",
	}, []string{"transport"})

	// TransportClosesTotal counts transport closes by reason: "idle" (the
	// worker's own idle-close), "closed" (a graceful close by the peer) or
	// "error".
	TransportClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ahfdns_resolver_transport_closes_total",
		Help: "Total number of transport closes",
	}, []string{"transport", "reason"})

	// QueryDuration tracks end-to-end Send latency.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ahfdns_resolver_query_duration_seconds",
		Help:    "Histogram of Send call durations",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})

	// TSIGVerifyTotal counts TSIG verification outcomes on signed
	// responses.
	TSIGVerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ahfdns_tsig_verify_total",
		Help: "Total number of TSIG verification attempts by outcome",
	}, []string{"result"})

	// OrchestrationCacheOperations tracks the orchestration client's
	// registry-lookup cache hits and misses.
	OrchestrationCacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ahfdns_orchestration_cache_operations_total",
		Help: "Total number of orchestration lookup cache hits and misses",
	}, []string{"result"})
)
