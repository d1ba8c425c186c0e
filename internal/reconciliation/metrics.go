package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileWalletMismatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendloka",
		Subsystem: "reconciliation",
		Name:      "wallet_mismatches",
		Help:      "Number of wallet balance mismatches found in last reconciliation run.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sendloka",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendloka",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation runs that failed with an error.",
	})
)

func init() {
	prometheus.MustRegister(reconcileWalletMismatches, reconcileDuration, reconcileErrors)
}
