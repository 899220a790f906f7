package usecase_test

import (
	"testing"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/usecase"
)

const epsilon = 0.000001

func floatEquals(a, b float64) bool {
	return (a-b) < epsilon && (b-a) < epsilon
}

func TestClassifyCandle(t *testing.T) {
	f := usecase.NewFeatureExtractor()

	tests := []struct {
		name string
		bar  domain.Bar
		want domain.CandleType
	}{
		{"Doji flat bar", domain.Bar{Open: 1.1000, Close: 1.1000, High: 1.1010, Low: 1.0990}, domain.CandleDoji},
		{"Extreme full-body", domain.Bar{Open: 1.1000, Close: 1.1019, High: 1.1020, Low: 1.1000}, domain.CandleExtreme},
		{"Momentum strong body", domain.Bar{Open: 1.1000, Close: 1.1014, High: 1.1018, Low: 1.0998}, domain.CandleMomentum},
		{"Reversal long upper wick", domain.Bar{Open: 1.1000, Close: 1.1003, High: 1.1020, Low: 1.0999}, domain.CandleReversal},
		{"Plain balanced bar", domain.Bar{Open: 1.1000, Close: 1.1005, High: 1.1009, Low: 1.0996}, domain.CandlePlain},
		{"Zero range is doji", domain.Bar{Open: 1.1, Close: 1.1, High: 1.1, Low: 1.1}, domain.CandleDoji},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.ClassifyCandle(tt.bar)
			if got != tt.want {
				t.Errorf("ClassifyCandle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindPivots(t *testing.T) {
	f := usecase.NewFeatureExtractor()

	// Bar 3 is the swing high, bar 6 the swing low; both have two lower
	// highs / higher lows on each side.
	highs := []float64{1.1010, 1.1020, 1.1030, 1.1050, 1.1030, 1.1020, 1.1010, 1.1015, 1.1020}
	lows := []float64{1.1000, 1.1010, 1.1020, 1.1040, 1.1020, 1.1010, 1.0990, 1.1005, 1.1010}

	bars := make([]domain.Bar, len(highs))
	for i := range highs {
		bars[i] = domain.Bar{High: highs[i], Low: lows[i], Time: time.Now()}
	}

	pivots := f.FindPivots(bars)
	if len(pivots) != 2 {
		t.Fatalf("FindPivots() returned %d pivots, want 2", len(pivots))
	}
	if pivots[0].Kind != domain.PivotHigh || !floatEquals(pivots[0].Price, 1.1050) {
		t.Errorf("first pivot = %+v, want HIGH at 1.1050", pivots[0])
	}
	if pivots[1].Kind != domain.PivotLow || !floatEquals(pivots[1].Price, 1.0990) {
		t.Errorf("second pivot = %+v, want LOW at 1.0990", pivots[1])
	}
}

func TestFindPivots_RecentBarsUnconfirmed(t *testing.T) {
	f := usecase.NewFeatureExtractor()

	// The highest high sits on the last bar; without right-side bars it
	// must not be reported as a pivot.
	bars := []domain.Bar{
		{High: 1.1010, Low: 1.1000},
		{High: 1.1015, Low: 1.1005},
		{High: 1.1020, Low: 1.1010},
		{High: 1.1025, Low: 1.1015},
		{High: 1.1060, Low: 1.1020},
	}
	for _, p := range f.FindPivots(bars) {
		if p.Index >= len(bars)-f.PivotLookback {
			t.Errorf("unconfirmed pivot reported at index %d", p.Index)
		}
	}
}

func TestDetectStage(t *testing.T) {
	f := usecase.NewFeatureExtractor()

	uptrend := make([]domain.Bar, 20)
	for i := range uptrend {
		base := 1.1000 + float64(i)*0.0010
		uptrend[i] = domain.Bar{Open: base, Close: base + 0.0008, High: base + 0.0010, Low: base - 0.0002}
	}
	side, strength := f.DetectStage(uptrend)
	if side != domain.SideLong {
		t.Errorf("DetectStage(uptrend) side = %v, want LONG", side)
	}
	if strength <= 0.2 {
		t.Errorf("DetectStage(uptrend) strength = %f, want > 0.2", strength)
	}

	downtrend := make([]domain.Bar, 20)
	for i := range downtrend {
		base := 1.1200 - float64(i)*0.0010
		downtrend[i] = domain.Bar{Open: base, Close: base - 0.0008, High: base + 0.0002, Low: base - 0.0010}
	}
	side, _ = f.DetectStage(downtrend)
	if side != domain.SideShort {
		t.Errorf("DetectStage(downtrend) side = %v, want SHORT", side)
	}

	// A flat chop should produce no bias.
	chop := make([]domain.Bar, 20)
	for i := range chop {
		off := 0.0005
		if i%2 == 0 {
			off = -0.0005
		}
		chop[i] = domain.Bar{Open: 1.1000, Close: 1.1000 + off, High: 1.1010, Low: 1.0990}
	}
	side, _ = f.DetectStage(chop)
	if side != "" {
		t.Errorf("DetectStage(chop) side = %v, want none", side)
	}
}

func TestExtract_EmptyBars(t *testing.T) {
	f := usecase.NewFeatureExtractor()
	feat := f.Extract(domain.TimeframeH1, nil)
	if feat.Timeframe != domain.TimeframeH1 || feat.Bias != "" || feat.LastClose != 0 {
		t.Errorf("Extract(empty) = %+v, want zero features", feat)
	}
}
