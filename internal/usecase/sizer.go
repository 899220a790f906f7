package usecase

import (
	"math"

	"github.com/vitos/fx_trade_sniper/internal/domain"
)

type SizingPolicy struct {
	// KellyMultiplier scales the raw Kelly fraction down for variance
	// control. Must be < 1.
	KellyMultiplier float64 `yaml:"kelly_multiplier"`
	// RiskCeilingPct caps the risked fraction of equity per trade.
	RiskCeilingPct float64 `yaml:"risk_ceiling_pct"`
}

func DefaultSizingPolicy() SizingPolicy {
	return SizingPolicy{KellyMultiplier: 0.5, RiskCeilingPct: 0.02}
}

type SizeInput struct {
	Equity         float64
	WinProbability float64
	RewardRisk     float64
	StopDistance   float64 // price units between entry and stop
	RiskScale      float64 // from the risk gate, (0,1]
	Spec           *domain.SymbolSpec
}

// PositionSizer converts a probability-weighted edge estimate into lot
// volume, snapped to the broker's volume constraints.
type PositionSizer struct {
	policy SizingPolicy
}

func NewPositionSizer(policy SizingPolicy) *PositionSizer {
	return &PositionSizer{policy: policy}
}

// KellyFraction is winProb - (1-winProb)/rewardRisk, floored at zero.
// A negative edge sizes to zero, never negative or short.
func KellyFraction(winProb, rewardRisk float64) float64 {
	if rewardRisk <= 0 {
		return 0
	}
	k := winProb - (1-winProb)/rewardRisk
	if k < 0 {
		return 0
	}
	return k
}

// Size returns the lot volume and the effective risked fraction. Zero lots
// means the trade is too small for the broker minimum or has no edge.
func (s *PositionSizer) Size(in SizeInput) (lots float64, riskPct float64) {
	if in.Equity <= 0 || in.StopDistance <= 0 || in.Spec == nil {
		return 0, 0
	}

	kelly := KellyFraction(in.WinProbability, in.RewardRisk)
	if kelly == 0 {
		return 0, 0
	}

	riskPct = kelly * s.policy.KellyMultiplier
	if riskPct > s.policy.RiskCeilingPct {
		riskPct = s.policy.RiskCeilingPct
	}
	if in.RiskScale > 0 && in.RiskScale < 1 {
		riskPct *= in.RiskScale
	}

	spec := in.Spec
	if spec.TickSize <= 0 || spec.TickValue <= 0 || spec.LotStep <= 0 {
		return 0, 0
	}

	// Loss per lot if the stop is hit, in account currency.
	lossPerLot := in.StopDistance / spec.TickSize * spec.TickValue
	if lossPerLot <= 0 {
		return 0, 0
	}

	raw := in.Equity * riskPct / lossPerLot

	// Snap down to the volume step, clamp to broker bounds.
	lots = math.Floor(raw/spec.LotStep) * spec.LotStep
	if lots > spec.MaxLot {
		lots = spec.MaxLot
	}
	if lots < spec.MinLot {
		return 0, 0
	}
	return lots, riskPct
}
