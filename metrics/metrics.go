// Package metrics exposes the daemon's Prometheus instrumentation: how
// long procedures and their steps take, how long workers wait on the
// lock table, and how many shards exist per state. Callers register
// observations inline; Handler serves the collected metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProcedureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fabrikd",
		Subsystem: "executor",
		Name:      "procedure_duration_seconds",
		Help:      "Time from a procedure's lock acquisition to its terminal state.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"name", "outcome"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fabrikd",
		Subsystem: "executor",
		Name:      "step_duration_seconds",
		Help:      "Time spent running and committing a single procedure step.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	LockWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fabrikd",
		Subsystem: "executor",
		Name:      "lock_wait_seconds",
		Help:      "Time a procedure spent blocked acquiring its lock set.",
		Buckets:   prometheus.DefBuckets,
	}, []string{})

	DegradedProcedures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fabrikd",
		Subsystem: "executor",
		Name:      "degraded_total",
		Help:      "Steps that held their locks past the heartbeat bound.",
	})

	ShardCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabrikd",
		Subsystem: "sharding",
		Name:      "shards",
		Help:      "Number of shards known to the topology cache, by state.",
	}, []string{"state"})

	PromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabrikd",
		Subsystem: "ha",
		Name:      "promotions_total",
		Help:      "Completed HA promotions, by path.",
	}, []string{"path"})

	RebalanceSkew = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabrikd",
		Subsystem: "sharding",
		Name:      "rebalance_skew_ratio",
		Help:      "Busiest-to-quietest shard sample-bucket ratio from the last rebalance estimate, by mapping.",
	}, []string{"mapping"})
)

// Handler serves the process's registered collectors in the Prometheus
// text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
