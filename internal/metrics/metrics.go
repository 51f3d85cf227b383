// Package metrics exposes the Prometheus instrumentation surface for the
// pending-response table and the admission path (SPEC_FULL §0 Domain
// Stack, prometheus/client_golang).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PendingResponsesEvicted counts pending jsonrpc responses dropped by
	// the LRU overflow policy before a reply ever arrived (SPEC_FULL §6,
	// Open Question: bounded pending-responses map).
	PendingResponsesEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainforge",
		Subsystem: "jsonrpc",
		Name:      "pending_responses_evicted_total",
		Help:      "Pending jsonrpc responses evicted by the overflow LRU before a reply arrived.",
	})

	// PendingResponsesInFlight tracks the current size of the pending table.
	PendingResponsesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainforge",
		Subsystem: "jsonrpc",
		Name:      "pending_responses_in_flight",
		Help:      "Number of jsonrpc requests awaiting a bus response.",
	})

	// TxAdmitted counts VerifyTxResp outcomes by Ret (spec §3/§7).
	TxAdmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainforge",
		Subsystem: "admission",
		Name:      "tx_admitted_total",
		Help:      "Transactions admitted, labeled by outcome.",
	}, []string{"ret"})

	// BatchesFlushed counts AdmissionBatcher flushes, labeled by trigger
	// ("size", "time", "idle" or "manual", spec §4.C).
	BatchesFlushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainforge",
		Subsystem: "admission",
		Name:      "batches_flushed_total",
		Help:      "AdmissionBatcher flushes, labeled by trigger.",
	}, []string{"trigger"})

	// HashWindowBackfills counts gap-triggered backfill requests (spec §4.A).
	HashWindowBackfills = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainforge",
		Subsystem: "hashwindow",
		Name:      "backfill_requests_total",
		Help:      "Backfill requests emitted because of a height gap.",
	})
)

func init() {
	prometheus.MustRegister(
		PendingResponsesEvicted,
		PendingResponsesInFlight,
		TxAdmitted,
		BatchesFlushed,
		HashWindowBackfills,
	)
}
