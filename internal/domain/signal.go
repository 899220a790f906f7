package domain

import "time"

type EntryType string

const (
	EntryConfluence EntryType = "confluence"
	EntryBreakout   EntryType = "sniper-breakout"
	EntryPullback   EntryType = "sniper-pullback"
	EntryExhaustion EntryType = "sniper-exhaustion"
)

type OrderKind string

const (
	OrderMarket  OrderKind = "MARKET"
	OrderPending OrderKind = "PENDING"
)

// TradeSignal is an immutable, consume-once entry candidate. A rejected
// signal is never retried; the source must produce a fresh one.
type TradeSignal struct {
	ID         string
	Symbol     string
	Side       Side
	Kind       OrderKind
	Entry      float64
	Stop       float64
	Target     float64
	Confidence float64 // 0..100
	EntryType  EntryType
	Expiry     time.Time // pending orders only
	CreatedAt  time.Time
}

// RewardRisk returns the reward:risk ratio implied by the signal levels.
func (s *TradeSignal) RewardRisk() float64 {
	risk := s.Entry - s.Stop
	if risk < 0 {
		risk = -risk
	}
	reward := s.Target - s.Entry
	if reward < 0 {
		reward = -reward
	}
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// ExecutionIntent is emitted by the sniper path when an armed setup fires.
type ExecutionIntent struct {
	ID        string
	Symbol    string
	Side      Side
	Kind      OrderKind
	Trigger   float64
	Stop      float64
	Target    float64
	Family    SetupFamily
	Expiry    time.Time
	CreatedAt time.Time
}

// Signal converts the intent into the downstream signal form shared with
// the confluence path.
func (i *ExecutionIntent) Signal() *TradeSignal {
	entryType := EntryBreakout
	switch i.Family {
	case FamilyPullback:
		entryType = EntryPullback
	case FamilyExhaustion:
		entryType = EntryExhaustion
	}
	return &TradeSignal{
		ID:         i.ID,
		Symbol:     i.Symbol,
		Side:       i.Side,
		Kind:       i.Kind,
		Entry:      i.Trigger,
		Stop:       i.Stop,
		Target:     i.Target,
		Confidence: 0,
		EntryType:  entryType,
		Expiry:     i.Expiry,
		CreatedAt:  i.CreatedAt,
	}
}

type SetupFamily string

const (
	FamilyBreakout   SetupFamily = "breakout"
	FamilyPullback   SetupFamily = "pullback"
	FamilyExhaustion SetupFamily = "exhaustion"
)

// SizedOrder is a signal with a volume attached, validated against the
// broker's volume constraints.
type SizedOrder struct {
	Signal  *TradeSignal
	Lots    float64
	RiskPct float64
}
