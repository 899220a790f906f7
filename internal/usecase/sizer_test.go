package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/usecase"
)

func testSpec() *domain.SymbolSpec {
	return &domain.SymbolSpec{
		Symbol:    "EURUSD",
		TickSize:  0.0001,
		TickValue: 1.0,
		MinLot:    0.01,
		LotStep:   0.01,
		MaxLot:    100,
	}
}

func TestKellyFraction(t *testing.T) {
	// p=0.55, rr=2: k = 0.55 - 0.45/2 = 0.325
	assert.InDelta(t, 0.325, usecase.KellyFraction(0.55, 2.0), epsilon)

	// Negative edge floors at zero.
	assert.Equal(t, 0.0, usecase.KellyFraction(0.30, 1.0))

	// Degenerate reward:risk yields zero.
	assert.Equal(t, 0.0, usecase.KellyFraction(0.55, 0))
}

func TestSize_KellyCappedAtCeiling(t *testing.T) {
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	// Raw Kelly 0.325, halved to 0.1625, capped at the 2% ceiling.
	lots, riskPct := sizer.Size(usecase.SizeInput{
		Equity:         10000,
		WinProbability: 0.55,
		RewardRisk:     2.0,
		StopDistance:   0.0050,
		RiskScale:      1,
		Spec:           testSpec(),
	})
	assert.InDelta(t, 0.02, riskPct, epsilon)
	// $200 at risk over a 50-tick stop at $1/tick = 4 lots.
	assert.InDelta(t, 4.0, lots, epsilon)
}

func TestSize_NegativeEdgeIsZero(t *testing.T) {
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	lots, riskPct := sizer.Size(usecase.SizeInput{
		Equity:         10000,
		WinProbability: 0.30,
		RewardRisk:     1.0,
		StopDistance:   0.0050,
		RiskScale:      1,
		Spec:           testSpec(),
	})
	assert.Equal(t, 0.0, lots)
	assert.Equal(t, 0.0, riskPct)
}

func TestSize_RiskScaleReduces(t *testing.T) {
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	in := usecase.SizeInput{
		Equity:         10000,
		WinProbability: 0.55,
		RewardRisk:     2.0,
		StopDistance:   0.0050,
		RiskScale:      1,
		Spec:           testSpec(),
	}
	full, _ := sizer.Size(in)

	in.RiskScale = 0.5
	scaled, riskPct := sizer.Size(in)
	assert.InDelta(t, 0.01, riskPct, epsilon)
	assert.InDelta(t, full/2, scaled, epsilon)
}

func TestSize_SnapsDownToLotStep(t *testing.T) {
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	spec := testSpec()
	spec.LotStep = 0.10

	// Raw volume 4.0 with risk scale 0.93 gives 3.72, snapped down to 3.7.
	lots, _ := sizer.Size(usecase.SizeInput{
		Equity:         10000,
		WinProbability: 0.55,
		RewardRisk:     2.0,
		StopDistance:   0.0050,
		RiskScale:      0.93,
		Spec:           spec,
	})
	assert.InDelta(t, 3.7, lots, epsilon)
}

func TestSize_BelowMinimumIsZero(t *testing.T) {
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	spec := testSpec()
	spec.MinLot = 1.0
	spec.LotStep = 1.0

	// 2% of $100 over a 50-tick stop is 0.04 lots, below the 1-lot minimum.
	lots, _ := sizer.Size(usecase.SizeInput{
		Equity:         100,
		WinProbability: 0.55,
		RewardRisk:     2.0,
		StopDistance:   0.0050,
		RiskScale:      1,
		Spec:           testSpec(),
	})
	assert.InDelta(t, 0.04, lots, epsilon)

	lots, riskPct := sizer.Size(usecase.SizeInput{
		Equity:         100,
		WinProbability: 0.55,
		RewardRisk:     2.0,
		StopDistance:   0.0050,
		RiskScale:      1,
		Spec:           spec,
	})
	assert.Equal(t, 0.0, lots)
	assert.Equal(t, 0.0, riskPct)
}

func TestSize_ClampsToMaxLot(t *testing.T) {
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	spec := testSpec()
	spec.MaxLot = 2.0

	lots, _ := sizer.Size(usecase.SizeInput{
		Equity:         10000,
		WinProbability: 0.55,
		RewardRisk:     2.0,
		StopDistance:   0.0050,
		RiskScale:      1,
		Spec:           spec,
	})
	assert.InDelta(t, 2.0, lots, epsilon)
}

func TestSize_InvalidInputs(t *testing.T) {
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	for _, in := range []usecase.SizeInput{
		{Equity: 0, WinProbability: 0.55, RewardRisk: 2, StopDistance: 0.005, Spec: testSpec()},
		{Equity: 10000, WinProbability: 0.55, RewardRisk: 2, StopDistance: 0, Spec: testSpec()},
		{Equity: 10000, WinProbability: 0.55, RewardRisk: 2, StopDistance: 0.005, Spec: nil},
	} {
		lots, riskPct := sizer.Size(in)
		assert.Equal(t, 0.0, lots)
		assert.Equal(t, 0.0, riskPct)
	}
}
