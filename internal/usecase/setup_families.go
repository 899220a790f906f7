package usecase

import (
	"github.com/vitos/fx_trade_sniper/internal/domain"
)

// setupPlan is the confirmed geometry of a setup: where it triggers, where
// it dies, and the protective levels carried into the order.
type setupPlan struct {
	Side         domain.Side
	Kind         domain.OrderKind
	Trigger      float64
	Invalidation float64
	Stop         float64
	Target       float64
}

// familyDetector is one setup family. FastCheck is the cheap per-bar
// precondition; Confirm is the stricter pass run only on fast candidates.
type familyDetector interface {
	Family() domain.SetupFamily
	FastCheck(bars []domain.Bar) bool
	Confirm(bars []domain.Bar) (*setupPlan, bool)
}

// --- Breakout: tight range pressed against one boundary, entered on the
// break beyond it.

type BreakoutConfig struct {
	RangeBars   int     `yaml:"range_bars"`
	MaxRangePct float64 `yaml:"max_range_pct"` // range height relative to price
	HoldBars    int     `yaml:"hold_bars"`     // closes required in the boundary quarter
	BufferPct   float64 `yaml:"buffer_pct"`    // trigger offset beyond the boundary
}

func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{RangeBars: 16, MaxRangePct: 0.004, HoldBars: 3, BufferPct: 0.0003}
}

type breakoutDetector struct {
	cfg BreakoutConfig
}

func newBreakoutDetector(cfg BreakoutConfig) *breakoutDetector {
	return &breakoutDetector{cfg: cfg}
}

func (d *breakoutDetector) Family() domain.SetupFamily { return domain.FamilyBreakout }

func (d *breakoutDetector) FastCheck(bars []domain.Bar) bool {
	high, low, ok := d.rangeBounds(bars)
	if !ok {
		return false
	}
	last := bars[len(bars)-1].Close
	if last == 0 {
		return false
	}
	return (high-low)/last <= d.cfg.MaxRangePct
}

func (d *breakoutDetector) Confirm(bars []domain.Bar) (*setupPlan, bool) {
	high, low, ok := d.rangeBounds(bars)
	if !ok || len(bars) < d.cfg.HoldBars {
		return nil, false
	}
	height := high - low
	if height == 0 {
		return nil, false
	}
	upperQuarter := high - height/4
	lowerQuarter := low + height/4

	holdingHigh, holdingLow := true, true
	for _, b := range bars[len(bars)-d.cfg.HoldBars:] {
		if b.Close < upperQuarter {
			holdingHigh = false
		}
		if b.Close > lowerQuarter {
			holdingLow = false
		}
	}

	last := bars[len(bars)-1].Close
	buffer := last * d.cfg.BufferPct
	switch {
	case holdingHigh:
		return &setupPlan{
			Side:         domain.SideLong,
			Kind:         domain.OrderMarket,
			Trigger:      high + buffer,
			Invalidation: low,
			Stop:         low,
			Target:       high + 2*height,
		}, true
	case holdingLow:
		return &setupPlan{
			Side:         domain.SideShort,
			Kind:         domain.OrderMarket,
			Trigger:      low - buffer,
			Invalidation: high,
			Stop:         high,
			Target:       low - 2*height,
		}, true
	}
	return nil, false
}

func (d *breakoutDetector) rangeBounds(bars []domain.Bar) (float64, float64, bool) {
	if len(bars) < d.cfg.RangeBars {
		return 0, 0, false
	}
	window := bars[len(bars)-d.cfg.RangeBars:]
	high, low := window[0].High, window[0].Low
	for _, b := range window {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, true
}

// --- Pullback: an impulse leg retracing into the buy/sell zone, entered
// with a pending order resting at the retracement level.

type PullbackConfig struct {
	ImpulseBars int     `yaml:"impulse_bars"`
	MinDepth    float64 `yaml:"min_depth"` // retracement fraction of the leg
	MaxDepth    float64 `yaml:"max_depth"`
	EntryDepth  float64 `yaml:"entry_depth"` // where the pending order rests
}

func DefaultPullbackConfig() PullbackConfig {
	return PullbackConfig{ImpulseBars: 10, MinDepth: 0.3, MaxDepth: 0.7, EntryDepth: 0.5}
}

type pullbackDetector struct {
	cfg      PullbackConfig
	features *FeatureExtractor
}

func newPullbackDetector(cfg PullbackConfig) *pullbackDetector {
	return &pullbackDetector{cfg: cfg, features: NewFeatureExtractor()}
}

func (d *pullbackDetector) Family() domain.SetupFamily { return domain.FamilyPullback }

// FastCheck: directional run over the impulse window with the last two
// bars moving against it.
func (d *pullbackDetector) FastCheck(bars []domain.Bar) bool {
	n := d.cfg.ImpulseBars
	if len(bars) < n+2 {
		return false
	}
	window := bars[len(bars)-n-2 : len(bars)-2]
	up := 0
	for _, b := range window {
		if b.Bullish() {
			up++
		}
	}
	b1, b2 := bars[len(bars)-2], bars[len(bars)-1]
	if up >= n*2/3 {
		return !b1.Bullish() && !b2.Bullish()
	}
	if n-up >= n*2/3 {
		return b1.Bullish() && b2.Bullish()
	}
	return false
}

func (d *pullbackDetector) Confirm(bars []domain.Bar) (*setupPlan, bool) {
	bias, _ := d.features.DetectStage(bars)
	if bias == "" {
		return nil, false
	}
	pivots := d.features.FindPivots(bars)
	depth := d.features.RetracementDepth(bars, pivots, bias)
	if depth < d.cfg.MinDepth || depth > d.cfg.MaxDepth {
		return nil, false
	}

	legHigh, legLow, ok := latestLeg(pivots, bias)
	if !ok {
		return nil, false
	}
	legRange := legHigh - legLow

	if bias == domain.SideLong {
		entry := legHigh - legRange*d.cfg.EntryDepth
		return &setupPlan{
			Side:         domain.SideLong,
			Kind:         domain.OrderPending,
			Trigger:      entry,
			Invalidation: legLow,
			Stop:         legLow,
			Target:       legHigh,
		}, true
	}
	entry := legLow + legRange*d.cfg.EntryDepth
	return &setupPlan{
		Side:         domain.SideShort,
		Kind:         domain.OrderPending,
		Trigger:      entry,
		Invalidation: legHigh,
		Stop:         legHigh,
		Target:       legLow,
	}, true
}

func latestLeg(pivots []domain.Pivot, bias domain.Side) (high, low float64, ok bool) {
	for i := len(pivots) - 1; i > 0; i-- {
		a, b := pivots[i-1], pivots[i]
		if bias == domain.SideLong && a.Kind == domain.PivotLow && b.Kind == domain.PivotHigh && b.Price > a.Price {
			return b.Price, a.Price, true
		}
		if bias == domain.SideShort && a.Kind == domain.PivotHigh && b.Kind == domain.PivotLow && a.Price > b.Price {
			return a.Price, b.Price, true
		}
	}
	return 0, 0, false
}

// --- Exhaustion: an extreme candle far outside normal range, faded once
// a reversal bar closes back through its midpoint.

type ExhaustionConfig struct {
	AvgBars      int     `yaml:"avg_bars"`
	MinRangeMult float64 `yaml:"min_range_mult"` // extreme bar range vs average
}

func DefaultExhaustionConfig() ExhaustionConfig {
	return ExhaustionConfig{AvgBars: 14, MinRangeMult: 2.5}
}

type exhaustionDetector struct {
	cfg ExhaustionConfig
}

func newExhaustionDetector(cfg ExhaustionConfig) *exhaustionDetector {
	return &exhaustionDetector{cfg: cfg}
}

func (d *exhaustionDetector) Family() domain.SetupFamily { return domain.FamilyExhaustion }

func (d *exhaustionDetector) FastCheck(bars []domain.Bar) bool {
	_, idx, ok := d.extremeBar(bars)
	return ok && idx == len(bars)-1
}

// Confirm waits for a bar closing back through the extreme bar's midpoint
// against its direction.
func (d *exhaustionDetector) Confirm(bars []domain.Bar) (*setupPlan, bool) {
	extreme, idx, ok := d.extremeBar(bars)
	if !ok || idx == len(bars)-1 {
		return nil, false
	}
	last := bars[len(bars)-1]
	mid := (extreme.High + extreme.Low) / 2

	if extreme.Bullish() {
		// Fade the spike up.
		if last.Close < mid {
			if extreme.High <= last.Low {
				return nil, false
			}
			return &setupPlan{
				Side:         domain.SideShort,
				Kind:         domain.OrderMarket,
				Trigger:      last.Low,
				Invalidation: extreme.High,
				Stop:         extreme.High,
				Target:       last.Low - 2*(extreme.High-last.Low),
			}, true
		}
		return nil, false
	}
	// Fade the spike down.
	if last.Close > mid {
		if last.High <= extreme.Low {
			return nil, false
		}
		return &setupPlan{
			Side:         domain.SideLong,
			Kind:         domain.OrderMarket,
			Trigger:      last.High,
			Invalidation: extreme.Low,
			Stop:         extreme.Low,
			Target:       last.High + 2*(last.High-extreme.Low),
		}, true
	}
	return nil, false
}

// extremeBar finds the most recent bar whose range dwarfs the preceding
// average, scanning only the confirmation-window tail.
func (d *exhaustionDetector) extremeBar(bars []domain.Bar) (domain.Bar, int, bool) {
	if len(bars) < d.cfg.AvgBars+1 {
		return domain.Bar{}, 0, false
	}
	for i := len(bars) - 1; i >= len(bars)-5 && i >= d.cfg.AvgBars; i-- {
		var sum float64
		for j := i - d.cfg.AvgBars; j < i; j++ {
			sum += bars[j].Range()
		}
		avg := sum / float64(d.cfg.AvgBars)
		if avg > 0 && bars[i].Range() >= avg*d.cfg.MinRangeMult {
			return bars[i], i, true
		}
	}
	return domain.Bar{}, 0, false
}
