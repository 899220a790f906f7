package domain

import "time"

type CandleType string

const (
	CandlePlain    CandleType = "PLAIN"
	CandleMomentum CandleType = "MOMENTUM"
	CandleReversal CandleType = "REVERSAL"
	CandleDoji     CandleType = "DOJI"
	CandleExtreme  CandleType = "EXTREME"
)

type PivotKind string

const (
	PivotHigh PivotKind = "HIGH"
	PivotLow  PivotKind = "LOW"
)

// Pivot is a confirmed swing point in a bar series.
type Pivot struct {
	Index int
	Price float64
	Kind  PivotKind
	Time  time.Time
}

// TimeframeFeatures is the classified view of one timeframe's bar series.
// Produced by the feature extractor, pure per call.
type TimeframeFeatures struct {
	Timeframe    Timeframe
	Candle       CandleType
	Bias         Side    // directional bias of the stage, "" if none
	BiasStrength float64 // 0..1
	Retracement  float64 // depth of current pullback vs last impulse, 0..1+
	RangeHigh    float64
	RangeLow     float64
	PivotHigh    float64 // most recent confirmed swing high, 0 if none
	PivotLow     float64
	LastClose    float64
}

// TimeframeAnalysis pairs the features with the per-timeframe score share.
type TimeframeAnalysis struct {
	Features TimeframeFeatures
	Score    float64
}

// SymbolAnalysis is the aggregate qualification view for one symbol,
// produced once per scan cycle and immutable after that.
type SymbolAnalysis struct {
	Symbol     string
	Timeframes []TimeframeAnalysis
	Score      float64 // 0..100
	Bias       Side
	Spread     float64

	// Entry trigger levels derived from the dominant timeframe.
	Reference    float64 // trigger fires when price crosses this in Bias direction
	Invalidation float64 // entry abandoned when price breaches this against Bias
	Stop         float64
	Target       float64

	Timestamp time.Time
}
