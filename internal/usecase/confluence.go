package usecase

import (
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
)

// ConfluenceConfig weights each analysis timeframe's contribution to the
// aggregate score. Weights should sum to 1; Score normalizes regardless.
type ConfluenceConfig struct {
	Weights map[domain.Timeframe]float64 `yaml:"weights"`
	// MinAlignment is the minimum net directional agreement (0..1) before
	// a bias is assigned at all.
	MinAlignment float64 `yaml:"min_alignment"`
}

func DefaultConfluenceConfig() ConfluenceConfig {
	return ConfluenceConfig{
		Weights: map[domain.Timeframe]float64{
			domain.TimeframeM15: 0.25,
			domain.TimeframeH1:  0.35,
			domain.TimeframeH4:  0.40,
		},
		MinAlignment: 0.3,
	}
}

// ConfluenceScorer aggregates multi-timeframe features into a single
// qualification score and direction bias.
type ConfluenceScorer struct {
	cfg ConfluenceConfig
}

func NewConfluenceScorer(cfg ConfluenceConfig) *ConfluenceScorer {
	return &ConfluenceScorer{cfg: cfg}
}

// Score produces the immutable per-cycle analysis for one symbol.
// Entry levels come from the lowest weighted timeframe (the trigger
// timeframe); stop/target from its recent pivots.
func (c *ConfluenceScorer) Score(symbol string, features []domain.TimeframeFeatures, spread float64, now time.Time) *domain.SymbolAnalysis {
	analysis := &domain.SymbolAnalysis{
		Symbol:    symbol,
		Spread:    spread,
		Timestamp: now,
	}

	var net, weightSum float64
	for _, feat := range features {
		w, ok := c.cfg.Weights[feat.Timeframe]
		if !ok {
			continue
		}
		weightSum += w

		contribution := feat.BiasStrength
		// Confirming candle types push the timeframe's vote harder.
		switch feat.Candle {
		case domain.CandleMomentum:
			contribution *= 1.2
		case domain.CandleExtreme:
			contribution *= 1.3
		case domain.CandleDoji:
			contribution *= 0.5
		}
		if contribution > 1 {
			contribution = 1
		}

		signed := contribution * w
		if feat.Bias == domain.SideShort {
			signed = -signed
		} else if feat.Bias == "" {
			signed = 0
		}
		net += signed

		analysis.Timeframes = append(analysis.Timeframes, domain.TimeframeAnalysis{
			Features: feat,
			Score:    signed,
		})
	}

	if weightSum == 0 {
		return analysis
	}

	alignment := net / weightSum // -1..1
	abs := alignment
	if abs < 0 {
		abs = -abs
	}
	analysis.Score = abs * 100
	if abs >= c.cfg.MinAlignment {
		if alignment > 0 {
			analysis.Bias = domain.SideLong
		} else {
			analysis.Bias = domain.SideShort
		}
	}

	c.attachEntryLevels(analysis, features)
	return analysis
}

// attachEntryLevels derives reference/invalidation/stop/target from the
// trigger timeframe (the lowest weighted one present).
func (c *ConfluenceScorer) attachEntryLevels(a *domain.SymbolAnalysis, features []domain.TimeframeFeatures) {
	if a.Bias == "" {
		return
	}

	var trigger *domain.TimeframeFeatures
	lowest := 2.0
	for i := range features {
		w, ok := c.cfg.Weights[features[i].Timeframe]
		if ok && w < lowest {
			lowest = w
			trigger = &features[i]
		}
	}
	if trigger == nil || trigger.PivotHigh == 0 || trigger.PivotLow == 0 {
		a.Bias = "" // no usable levels, symbol does not qualify
		return
	}

	risk := trigger.PivotHigh - trigger.PivotLow
	if a.Bias == domain.SideLong {
		a.Reference = trigger.PivotHigh
		a.Invalidation = trigger.PivotLow
		a.Stop = trigger.PivotLow
		a.Target = trigger.PivotHigh + 2*risk
	} else {
		a.Reference = trigger.PivotLow
		a.Invalidation = trigger.PivotHigh
		a.Stop = trigger.PivotHigh
		a.Target = trigger.PivotLow - 2*risk
	}
}
