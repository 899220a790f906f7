package domain

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OpenPosition is a broker-confirmed open trade tracked by the lifecycle
// monitor. Ticket is the broker's identifier and is authoritative.
type OpenPosition struct {
	Ticket      int64     `json:"ticket"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Lots        float64   `json:"lots"`
	EntryPrice  float64   `json:"entry_price"`
	Stop        float64   `json:"stop"`
	Target      float64   `json:"target"`
	OpenedAt    time.Time `json:"opened_at"`
	EntryType   EntryType `json:"entry_type"`
	ClientID    string    `json:"client_id"` // dedupe tag set at submission
	PartialDone bool      `json:"partial_done"`
}

type ExitReason string

const (
	ExitStop    ExitReason = "stop"
	ExitTarget  ExitReason = "target"
	ExitManual  ExitReason = "manual"
	ExitWeekend ExitReason = "weekend"
	ExitBroker  ExitReason = "broker-forced"
	ExitPartial ExitReason = "partial"
)

// TradeResult is produced exactly once when a position closes. It is fed
// to the risk gate and then appended to the immutable trade journal.
type TradeResult struct {
	Ticket     int64      `json:"ticket"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Lots       float64    `json:"lots"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Profit     float64    `json:"profit"`
	Win        bool       `json:"win"`
	Reason     ExitReason `json:"reason"`
	EntryType  EntryType  `json:"entry_type"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   time.Time  `json:"closed_at"`
}

// Deal is one realized broker-side fill for a closed position.
type Deal struct {
	Ticket int64
	Symbol string
	Lots   float64
	Price  float64
	Profit float64
	Reason ExitReason
	Time   time.Time
}
