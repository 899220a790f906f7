package domain

import "time"

type Timeframe string

const (
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// Bar is a closed OHLCV bar for one symbol/timeframe.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Time      time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

func (b Bar) Range() float64 {
	return b.High - b.Low
}

func (b Bar) Body() float64 {
	body := b.Close - b.Open
	if body < 0 {
		return -body
	}
	return body
}

func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// Tick is the latest bid/ask quote for a symbol.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// SymbolSpec holds broker-reported trading constraints for one instrument.
type SymbolSpec struct {
	Symbol          string   `json:"symbol"`
	Digits          int      `json:"digits"`
	PipSize         float64  `json:"pip_size"`
	TickSize        float64  `json:"tick_size"`
	TickValue       float64  `json:"tick_value"` // account currency per tick per lot
	MinLot          float64  `json:"min_lot"`
	LotStep         float64  `json:"lot_step"`
	MaxLot          float64  `json:"max_lot"`
	MinStopDistance float64  `json:"min_stop_distance"` // in price units
	FillModes       []string `json:"fill_modes"`
}

func (s *SymbolSpec) SupportsFillMode(mode string) bool {
	for _, m := range s.FillModes {
		if m == mode {
			return true
		}
	}
	return false
}
