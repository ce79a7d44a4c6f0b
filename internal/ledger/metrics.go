package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pointsAwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_points_awarded_total",
		Help: "Points credited to accounts, labeled by earning source",
	}, []string{"source"})

	pointsRedeemedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_redeemed_total",
		Help: "Points spent on reward redemptions",
	})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_operations_total",
		Help: "Ledger operations, labeled by operation and result code",
	}, []string{"op", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyalty_operation_duration_seconds",
		Help:    "Latency of ledger operations including lock wait",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"op"})
)

func observe(op string, start time.Time, err error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = CodeOf(err)
		if result == "" {
			result = "error"
		}
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
