package domain

import "context"

// Broker defines the interface for the market-data/broker gateway.
type Broker interface {
	GetBars(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Bar, error)
	GetTick(ctx context.Context, symbol string) (*Tick, error)
	GetSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error)
	AccountEquity(ctx context.Context) (float64, error)

	SendOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	ModifyPosition(ctx context.Context, ticket int64, stop, target float64) error
	// ClosePosition closes the given volume; lots <= 0 closes the full position.
	ClosePosition(ctx context.Context, ticket int64, lots float64) (*OrderResult, error)

	OpenPositions(ctx context.Context) ([]*OpenPosition, error)
	DealsByTicket(ctx context.Context, ticket int64) ([]*Deal, error)

	OnTick(callback func(Tick))
	OnBarClose(callback func(Bar))
	Subscribe(symbols []string, timeframes []Timeframe) error
}

// Advice is an optional adjustment from the advisory service. RiskScale
// only ever reduces risk; the gate clamps anything above 1.
type Advice struct {
	Veto      bool
	RiskScale float64 // (0,1], 0 means unset
}

// Advisor inspects a qualified signal and may veto it or scale risk down.
// A nil advice or an error is treated as "no adjustment", never as a deny.
type Advisor interface {
	Assess(ctx context.Context, signal *TradeSignal) (*Advice, error)
}

// RiskStateRepository persists the durable risk state.
type RiskStateRepository interface {
	LoadRiskState(ctx context.Context) (*RiskState, error) // nil, nil when absent
	SaveRiskState(ctx context.Context, state *RiskState) error
}

// JournalRepository is the append-only closed-trade journal.
type JournalRepository interface {
	AppendTradeResult(ctx context.Context, result *TradeResult) error
	ListTradeResults(ctx context.Context, limit int) ([]*TradeResult, error)
}

// PositionRepository persists tracked open positions so the monitor can
// resume after a restart.
type PositionRepository interface {
	SavePosition(ctx context.Context, pos *OpenPosition) error
	DeletePosition(ctx context.Context, ticket int64) error
	ListPositions(ctx context.Context) ([]*OpenPosition, error)
}

// Notifier receives operational trade events.
type Notifier interface {
	TradeOpened(pos *OpenPosition)
	TradeClosed(result *TradeResult)
	HaltChanged(reason string, active bool)
}
