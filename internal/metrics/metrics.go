// Package metrics holds the Prometheus collectors exported on /metrics.
//
//   - trader_orders_total{mode,leg,result}      leg placements
//   - trader_batches_total{mode,result}         batches executed
//   - trader_runs_total{mode,status}            batch runs by terminal status
//   - trader_phase_runs_total{phase,status}     scheduler phase invocations
//   - trader_risk_breaches_total                stop-loss breaches observed
//   - trader_live_pnl                           last P&L seen by the risk gate
//   - trader_recommendations_total{recommendation}
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Leg orders placed by result",
		},
		[]string{"mode", "leg", "result"},
	)

	mtxBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_batches_total",
			Help: "Batches executed",
		},
		[]string{"mode", "result"},
	)

	mtxRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_runs_total",
			Help: "Batch runs by terminal status",
		},
		[]string{"mode", "status"},
	)

	mtxPhases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_phase_runs_total",
			Help: "Scheduler phase invocations",
		},
		[]string{"phase", "status"},
	)

	mtxBreaches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_risk_breaches_total",
			Help: "Stop-loss breaches observed",
		},
	)

	mtxPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_live_pnl",
			Help: "Last live P&L seen by the risk gate",
		},
	)

	mtxRecommendations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_recommendations_total",
			Help: "Averaging recommendations by outcome",
		},
		[]string{"recommendation"},
	)
)

func init() {
	prometheus.MustRegister(
		mtxOrders,
		mtxBatches,
		mtxRuns,
		mtxPhases,
		mtxBreaches,
		mtxPnL,
		mtxRecommendations,
	)
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func RecordOrder(mode, leg string, ok bool) {
	mtxOrders.WithLabelValues(mode, leg, resultLabel(ok)).Inc()
}

func RecordBatch(mode string, ok bool) {
	mtxBatches.WithLabelValues(mode, resultLabel(ok)).Inc()
}

func RecordRun(mode, status string) {
	mtxRuns.WithLabelValues(mode, status).Inc()
}

func RecordPhase(phase, status string) {
	mtxPhases.WithLabelValues(phase, status).Inc()
}

func RecordBreach() {
	mtxBreaches.Inc()
}

func SetPnL(v float64) {
	mtxPnL.Set(v)
}

func RecordRecommendation(r string) {
	mtxRecommendations.WithLabelValues(r).Inc()
}
