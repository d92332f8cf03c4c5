package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "rpc_requests_total",
		Help:      "JSON-RPC requests issued to the network, by method and result.",
	}, []string{"method", "result"})

	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "rpc_request_duration_seconds",
		Help:      "JSON-RPC request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	StoreRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "store_refreshes_total",
		Help:      "Schedule store refreshes, by result.",
	}, []string{"result"})

	SchedulesTracked = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "schedules_tracked",
		Help:      "Schedules held by the local mirror, by status.",
	}, []string{"status"})

	Transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "transactions_total",
		Help:      "Mutating ledger operations, by operation and outcome.",
	}, []string{"operation", "outcome"})

	TransactionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "transactions_in_flight",
		Help:      "Mutating ledger operations currently running.",
	})

	SessionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "session_state",
		Help:      "1 for the current wallet session state, 0 otherwise.",
	}, []string{"state"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers all collectors with the default registry. Safe to call more than once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RPCRequests,
			RPCDuration,
			StoreRefreshes,
			SchedulesTracked,
			Transactions,
			TransactionsInFlight,
			SessionState,
		)
	})
}

// SetSessionState marks state as the only active session state.
func SetSessionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		SessionState.WithLabelValues(s).Set(v)
	}
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
