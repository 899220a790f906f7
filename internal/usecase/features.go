package usecase

import (
	"github.com/vitos/fx_trade_sniper/internal/domain"
)

// FeatureExtractor turns a raw bar series into classified features for one
// timeframe. Pure and stateless per call.
type FeatureExtractor struct {
	PivotLookback int // bars on each side required to confirm a swing
	StageWindow   int // bars used for directional bias
}

func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{
		PivotLookback: 2,
		StageWindow:   20,
	}
}

// ClassifyCandle buckets a single bar by body/range proportions.
func (f *FeatureExtractor) ClassifyCandle(bar domain.Bar) domain.CandleType {
	rng := bar.Range()
	if rng == 0 {
		return domain.CandleDoji
	}
	body := bar.Body()
	ratio := body / rng

	switch {
	case ratio < 0.1:
		return domain.CandleDoji
	case ratio > 0.85:
		return domain.CandleExtreme
	case ratio > 0.6:
		return domain.CandleMomentum
	}

	// Long single-sided wick with a small body reads as rejection.
	upperWick := bar.High - maxF(bar.Open, bar.Close)
	lowerWick := minF(bar.Open, bar.Close) - bar.Low
	if upperWick > 2*body || lowerWick > 2*body {
		return domain.CandleReversal
	}
	return domain.CandlePlain
}

// FindPivots returns confirmed swing highs/lows. A pivot needs
// PivotLookback lower highs (or higher lows) on both sides, so the most
// recent bars can never hold an unconfirmed pivot.
func (f *FeatureExtractor) FindPivots(bars []domain.Bar) []domain.Pivot {
	lb := f.PivotLookback
	var pivots []domain.Pivot

	for i := lb; i < len(bars)-lb; i++ {
		isHigh, isLow := true, true
		for j := i - lb; j <= i+lb; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
		}
		if isHigh {
			pivots = append(pivots, domain.Pivot{Index: i, Price: bars[i].High, Kind: domain.PivotHigh, Time: bars[i].Time})
		}
		if isLow {
			pivots = append(pivots, domain.Pivot{Index: i, Price: bars[i].Low, Kind: domain.PivotLow, Time: bars[i].Time})
		}
	}
	return pivots
}

// DetectStage estimates directional bias over the stage window by counting
// closes above/below the window midpoint, weighted toward recent bars.
func (f *FeatureExtractor) DetectStage(bars []domain.Bar) (domain.Side, float64) {
	n := f.StageWindow
	if len(bars) < n {
		n = len(bars)
	}
	if n < 2 {
		return "", 0
	}
	window := bars[len(bars)-n:]

	high, low := window[0].High, window[0].Low
	for _, b := range window {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	if high == low {
		return "", 0
	}
	mid := (high + low) / 2

	var score, weightSum float64
	for i, b := range window {
		w := float64(i + 1)
		weightSum += w
		if b.Close > mid {
			score += w
		} else if b.Close < mid {
			score -= w
		}
	}
	strength := score / weightSum
	if strength > 0.2 {
		return domain.SideLong, strength
	}
	if strength < -0.2 {
		return domain.SideShort, -strength
	}
	return "", 0
}

// RetracementDepth measures how far the current pullback has retraced the
// last impulse leg between the two most recent opposing pivots. Returns 0
// when there is no usable leg.
func (f *FeatureExtractor) RetracementDepth(bars []domain.Bar, pivots []domain.Pivot, bias domain.Side) float64 {
	if len(pivots) < 2 || len(bars) == 0 || bias == "" {
		return 0
	}

	// Walk pivots backwards for the latest leg in the bias direction.
	var legHigh, legLow float64
	found := false
	for i := len(pivots) - 1; i > 0 && !found; i-- {
		a, b := pivots[i-1], pivots[i]
		if bias == domain.SideLong && a.Kind == domain.PivotLow && b.Kind == domain.PivotHigh && b.Price > a.Price {
			legLow, legHigh = a.Price, b.Price
			found = true
		}
		if bias == domain.SideShort && a.Kind == domain.PivotHigh && b.Kind == domain.PivotLow && a.Price > b.Price {
			legLow, legHigh = b.Price, a.Price
			found = true
		}
	}
	if !found || legHigh == legLow {
		return 0
	}

	last := bars[len(bars)-1].Close
	if bias == domain.SideLong {
		return (legHigh - last) / (legHigh - legLow)
	}
	return (last - legLow) / (legHigh - legLow)
}

// Extract builds the full feature set for one timeframe.
func (f *FeatureExtractor) Extract(tf domain.Timeframe, bars []domain.Bar) domain.TimeframeFeatures {
	feat := domain.TimeframeFeatures{Timeframe: tf}
	if len(bars) == 0 {
		return feat
	}

	last := bars[len(bars)-1]
	feat.Candle = f.ClassifyCandle(last)
	feat.LastClose = last.Close

	high, low := bars[0].High, bars[0].Low
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	feat.RangeHigh, feat.RangeLow = high, low

	feat.Bias, feat.BiasStrength = f.DetectStage(bars)

	pivots := f.FindPivots(bars)
	for i := len(pivots) - 1; i >= 0; i-- {
		if feat.PivotHigh == 0 && pivots[i].Kind == domain.PivotHigh {
			feat.PivotHigh = pivots[i].Price
		}
		if feat.PivotLow == 0 && pivots[i].Kind == domain.PivotLow {
			feat.PivotLow = pivots[i].Price
		}
		if feat.PivotHigh != 0 && feat.PivotLow != 0 {
			break
		}
	}

	feat.Retracement = f.RetracementDepth(bars, pivots, feat.Bias)
	return feat
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
