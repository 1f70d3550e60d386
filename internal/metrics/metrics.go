// Package metrics exposes the engine's Prometheus counters and gauges:
// cycle evaluation outcomes, reset frequency, and the last observed net
// profit per direction.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CyclesAttempted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triarb_cycles_attempted_total",
			Help: "Trade cycles emitted, by direction (forward|backward).",
		},
		[]string{"direction"},
	)

	CyclesProfitable = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triarb_cycles_profitable_total",
			Help: "Evaluated cycles that cleared the minimum trade value, by direction.",
		},
		[]string{"direction"},
	)

	SlippageAborts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "triarb_slippage_aborts_total",
			Help: "Fills rejected as mispriced full-size fills, triggering permalock.",
		},
	)

	ResetsTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "triarb_resets_triggered_total",
			Help: "Supervisor reset sequences performed.",
		},
	)

	LastNetProfit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "triarb_last_net_profit",
			Help: "Most recently evaluated net profit in cash terms (fee-adjusted, throughput-scaled), by direction.",
		},
		[]string{"direction"},
	)

	AccountPositionValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "triarb_account_position",
			Help: "Last known held quantity per instrument id.",
		},
		[]string{"instrument_id"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesAttempted,
		CyclesProfitable,
		SlippageAborts,
		ResetsTriggered,
		LastNetProfit,
		AccountPositionValue,
	)
}
