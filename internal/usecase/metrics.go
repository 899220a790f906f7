package usecase

// MetricsRecorder receives operational counters. The prometheus
// implementation lives in infrastructure; tests and minimal setups use
// NopMetrics.
type MetricsRecorder interface {
	SignalEmitted(source string)
	Denial(reason string)
	OrderPlaced(kind, side string)
	TradeRecorded(win bool)
	HaltChanged(reason string, active bool)
	Equity(value float64)
}

type NopMetrics struct{}

func (NopMetrics) SignalEmitted(string)       {}
func (NopMetrics) Denial(string)              {}
func (NopMetrics) OrderPlaced(string, string) {}
func (NopMetrics) TradeRecorded(bool)         {}
func (NopMetrics) HaltChanged(string, bool)   {}
func (NopMetrics) Equity(float64)             {}
