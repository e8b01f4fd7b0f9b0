package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OpsTotal counts ledger operations by type and outcome.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Name:      "ledger_operations_total",
			Help:      "Total ledger operations by type and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// OpDuration observes operation latency by type.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apexcore",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation duration in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	// BankBalance tracks the current system_bank balance in APX.
	BankBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Name:      "ledger_bank_balance_apx",
			Help:      "Current system_bank balance, in APX.",
		},
	)

	// AgentCount tracks the number of registered agents.
	AgentCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Name:      "ledger_agent_count",
			Help:      "Number of registered agents.",
		},
	)

	// VerifierRejections counts Verifier rejections by violation kind.
	VerifierRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Name:      "ledger_verifier_rejections_total",
			Help:      "Verifier rejections by violation kind.",
		},
		[]string{"violation"},
	)

	// SnapshotsTotal counts completed snapshots.
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Name:      "ledger_snapshots_total",
			Help:      "Completed ledger snapshots, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		OpsTotal,
		OpDuration,
		BankBalance,
		AgentCount,
		VerifierRejections,
		SnapshotsTotal,
	)
}

// observeOp starts timing op and returns a function that, once the
// operation finishes, increments the operation counter with its outcome and
// records the duration.
func observeOp(op string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		OpsTotal.WithLabelValues(op, outcome).Inc()
		OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
