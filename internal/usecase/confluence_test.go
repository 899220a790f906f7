package usecase_test

import (
	"testing"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/usecase"
)

func alignedFeatures(bias domain.Side, strength float64) []domain.TimeframeFeatures {
	return []domain.TimeframeFeatures{
		{Timeframe: domain.TimeframeM15, Bias: bias, BiasStrength: strength, Candle: domain.CandlePlain, PivotHigh: 1.1050, PivotLow: 1.1000},
		{Timeframe: domain.TimeframeH1, Bias: bias, BiasStrength: strength, Candle: domain.CandlePlain},
		{Timeframe: domain.TimeframeH4, Bias: bias, BiasStrength: strength, Candle: domain.CandlePlain},
	}
}

func TestScore_FullAlignment(t *testing.T) {
	scorer := usecase.NewConfluenceScorer(usecase.DefaultConfluenceConfig())

	analysis := scorer.Score("EURUSD", alignedFeatures(domain.SideLong, 0.8), 0.0001, time.Now())

	if analysis.Bias != domain.SideLong {
		t.Fatalf("Bias = %v, want LONG", analysis.Bias)
	}
	// Every timeframe contributes 0.8 of its weight, so the score is 80.
	if !floatEquals(analysis.Score, 80) {
		t.Errorf("Score = %f, want 80", analysis.Score)
	}
	if len(analysis.Timeframes) != 3 {
		t.Errorf("Timeframes = %d, want 3", len(analysis.Timeframes))
	}
}

func TestScore_ConflictingTimeframes(t *testing.T) {
	scorer := usecase.NewConfluenceScorer(usecase.DefaultConfluenceConfig())

	features := []domain.TimeframeFeatures{
		{Timeframe: domain.TimeframeM15, Bias: domain.SideLong, BiasStrength: 0.9, Candle: domain.CandlePlain, PivotHigh: 1.1050, PivotLow: 1.1000},
		{Timeframe: domain.TimeframeH1, Bias: domain.SideShort, BiasStrength: 0.9, Candle: domain.CandlePlain},
		{Timeframe: domain.TimeframeH4, Bias: domain.SideLong, BiasStrength: 0.2, Candle: domain.CandlePlain},
	}
	analysis := scorer.Score("EURUSD", features, 0.0001, time.Now())

	// Net alignment: (0.9*0.25 - 0.9*0.35 + 0.2*0.40) = -0.01, well below
	// the minimum; no bias may be assigned.
	if analysis.Bias != "" {
		t.Errorf("Bias = %v, want none for conflicting timeframes", analysis.Bias)
	}
	if analysis.Score >= 60 {
		t.Errorf("Score = %f, want below qualification range", analysis.Score)
	}
}

func TestScore_EntryLevelsFromTriggerTimeframe(t *testing.T) {
	scorer := usecase.NewConfluenceScorer(usecase.DefaultConfluenceConfig())

	analysis := scorer.Score("EURUSD", alignedFeatures(domain.SideLong, 0.8), 0.0001, time.Now())

	// Levels come from the M15 pivots (lowest weight): reference at the
	// swing high, stop at the swing low, target at 2R beyond.
	if !floatEquals(analysis.Reference, 1.1050) {
		t.Errorf("Reference = %f, want 1.1050", analysis.Reference)
	}
	if !floatEquals(analysis.Stop, 1.1000) {
		t.Errorf("Stop = %f, want 1.1000", analysis.Stop)
	}
	if !floatEquals(analysis.Target, 1.1150) {
		t.Errorf("Target = %f, want 1.1150", analysis.Target)
	}
	if !floatEquals(analysis.Invalidation, 1.1000) {
		t.Errorf("Invalidation = %f, want 1.1000", analysis.Invalidation)
	}
}

func TestScore_NoPivotsDisqualifies(t *testing.T) {
	scorer := usecase.NewConfluenceScorer(usecase.DefaultConfluenceConfig())

	features := alignedFeatures(domain.SideLong, 0.8)
	features[0].PivotHigh = 0
	features[0].PivotLow = 0

	analysis := scorer.Score("EURUSD", features, 0.0001, time.Now())
	if analysis.Bias != "" {
		t.Errorf("Bias = %v, want none without usable entry levels", analysis.Bias)
	}
}

func TestScore_CandleMultipliers(t *testing.T) {
	scorer := usecase.NewConfluenceScorer(usecase.DefaultConfluenceConfig())

	momentum := alignedFeatures(domain.SideLong, 0.5)
	for i := range momentum {
		momentum[i].Candle = domain.CandleMomentum
	}
	doji := alignedFeatures(domain.SideLong, 0.5)
	for i := range doji {
		doji[i].Candle = domain.CandleDoji
	}

	sm := scorer.Score("EURUSD", momentum, 0, time.Now()).Score
	sd := scorer.Score("EURUSD", doji, 0, time.Now()).Score
	if sm <= sd {
		t.Errorf("momentum score %f should exceed doji score %f", sm, sd)
	}
}
