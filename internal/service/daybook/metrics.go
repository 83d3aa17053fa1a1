package daybook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	stageBalances = "balances"
	stagePeriods  = "periods"
)

var (
	recalcTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "daybook",
			Name:      "recalculations_total",
			Help:      "Cascading recalculations by stage and result",
		},
		[]string{"stage", "result"},
	)
	recalcRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "daybook",
			Name:      "recalculated_rows",
			Help:      "Entry balances rewritten per recalculation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
	recalcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "daybook",
			Name:      "recalculation_duration_seconds",
			Help:      "Time spent replaying balances or rebuilding periods",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "daybook",
			Name:      "mutations_total",
			Help:      "Ledger mutations by operation and result",
		},
		[]string{"op", "result"},
	)
)

func observeMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mutationsTotal.WithLabelValues(op, result).Inc()
}
