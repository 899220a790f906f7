package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements usecase.MetricsRecorder on a prometheus registry.
type Recorder struct {
	signals *prometheus.CounterVec
	denials *prometheus.CounterVec
	orders  *prometheus.CounterVec
	trades  *prometheus.CounterVec
	halts   *prometheus.GaugeVec
	equity  prometheus.Gauge
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_signals_total",
			Help: "Trade signals emitted, by source.",
		}, []string{"source"}),
		denials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_denials_total",
			Help: "Risk gate denials, by reason.",
		}, []string{"reason"}),
		orders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_orders_total",
			Help: "Orders placed, by kind and side.",
		}, []string{"kind", "side"}),
		trades: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_trades_total",
			Help: "Closed trades, by outcome.",
		}, []string{"outcome"}),
		halts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sniper_halt_active",
			Help: "Whether a trading halt is active, by reason.",
		}, []string{"reason"}),
		equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_equity",
			Help: "Last known account equity.",
		}),
	}
}

func (r *Recorder) SignalEmitted(source string) {
	r.signals.WithLabelValues(source).Inc()
}

func (r *Recorder) Denial(reason string) {
	r.denials.WithLabelValues(reason).Inc()
}

func (r *Recorder) OrderPlaced(kind, side string) {
	r.orders.WithLabelValues(kind, side).Inc()
}

func (r *Recorder) TradeRecorded(win bool) {
	outcome := "loss"
	if win {
		outcome = "win"
	}
	r.trades.WithLabelValues(outcome).Inc()
}

func (r *Recorder) HaltChanged(reason string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	r.halts.WithLabelValues(reason).Set(v)
}

func (r *Recorder) Equity(value float64) {
	r.equity.Set(value)
}
