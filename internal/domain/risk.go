package domain

import (
	"fmt"
	"time"
)

// RiskState is the durable slice of the risk gate: running P&L windows,
// drawdown tracking, halts and per-symbol cooldowns. It is loaded at
// startup and written back on every mutation. Exposure counters are
// rebuilt from the broker snapshot instead and are not persisted.
type RiskState struct {
	Day  string // trading day the daily window belongs to, "2006-01-02"
	Week string // ISO week of the weekly window, "2006-W01"

	DailyPnL   float64
	WeeklyPnL  float64
	Equity     float64
	PeakEquity float64

	HaltDaily    bool
	HaltWeekly   bool
	HaltDrawdown bool

	CooldownUntil    map[string]time.Time
	ProcessedTickets map[int64]bool
}

func NewRiskState(equity float64, now time.Time) *RiskState {
	return &RiskState{
		Day:              TradingDay(now),
		Week:             TradingWeek(now),
		Equity:           equity,
		PeakEquity:       equity,
		CooldownUntil:    make(map[string]time.Time),
		ProcessedTickets: make(map[int64]bool),
	}
}

// Drawdown returns the current decline from peak equity as a fraction.
func (s *RiskState) Drawdown() float64 {
	if s.PeakEquity <= 0 {
		return 0
	}
	dd := (s.PeakEquity - s.Equity) / s.PeakEquity
	if dd < 0 {
		return 0
	}
	return dd
}

func TradingDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func TradingWeek(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
