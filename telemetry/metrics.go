package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntriesAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_entries_appended_total",
		Help: "Total number of ledger entries appended",
	})

	UnitsCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_units_committed_total",
		Help: "Total number of committed transactional units",
	}, []string{"operation"})

	UnitsAbortedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_units_aborted_total",
		Help: "Total number of aborted transactional units",
	}, []string{"operation", "reason"})

	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_reconcile_runs_total",
		Help: "Total number of snapshot reconciliation runs",
	}, []string{"outcome"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_reconcile_duration_seconds",
		Help:    "Latency of snapshot reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	RestockRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restock_runs_total",
		Help: "Total number of scheduled restock passes",
	}, []string{"outcome"})

	RestockBarrelsPlanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restock_barrels_planned_total",
		Help: "Total number of barrels included in restock plans",
	})
)
