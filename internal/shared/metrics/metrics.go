package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Engine groups the collectors updated by the period clock and the round pipeline.
type Engine struct {
	RoundsSettled    prometheus.Counter
	RoundFailures    *prometheus.CounterVec // by stage
	ControlApplied   *prometheus.CounterVec // by mode
	BetsSettled      prometheus.Counter
	RebateRecords    prometheus.Counter
	PersistAttempts  prometheus.Counter
	BetsPlaced       prometheus.Counter
	BetsRejected     *prometheus.CounterVec // by reason
	PeriodTransition *prometheus.CounterVec // by status
	RoundDuration    prometheus.Histogram
}

func NewEngine(reg prometheus.Registerer) *Engine {
	m := &Engine{
		RoundsSettled:    prometheus.NewCounter(prometheus.CounterOpts{Name: "lottery_rounds_settled_total", Help: "rounds fully drawn and settled"}),
		RoundFailures:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lottery_round_failures_total", Help: "round failures by stage"}, []string{"stage"}),
		ControlApplied:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lottery_control_applied_total", Help: "draws generated under an active control policy"}, []string{"mode"}),
		BetsSettled:      prometheus.NewCounter(prometheus.CounterOpts{Name: "lottery_bets_settled_total", Help: "bets settled"}),
		RebateRecords:    prometheus.NewCounter(prometheus.CounterOpts{Name: "lottery_rebate_records_total", Help: "rebate ledger records written"}),
		PersistAttempts:  prometheus.NewCounter(prometheus.CounterOpts{Name: "lottery_result_persist_attempts_total", Help: "draw result persistence attempts"}),
		BetsPlaced:       prometheus.NewCounter(prometheus.CounterOpts{Name: "lottery_bets_placed_total", Help: "bets accepted"}),
		BetsRejected:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lottery_bets_rejected_total", Help: "bets rejected by reason"}, []string{"reason"}),
		PeriodTransition: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lottery_period_transitions_total", Help: "period status transitions"}, []string{"status"}),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lottery_round_duration_seconds",
			Help:    "time from draw start to rebate completion",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.RoundsSettled, m.RoundFailures, m.ControlApplied, m.BetsSettled, m.RebateRecords,
		m.PersistAttempts, m.BetsPlaced, m.BetsRejected, m.PeriodTransition, m.RoundDuration,
	)
	return m
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Engine {
	return NewEngine(prometheus.NewRegistry())
}
