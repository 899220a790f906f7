package domain

import (
	"errors"
	"fmt"
	"time"
)

// OrderRequest is the normalized broker order submission.
type OrderRequest struct {
	ClientID string // dedupe-safe id for retries
	Symbol   string
	Side     Side
	Kind     OrderKind
	Lots     float64
	Price    float64 // trigger price for pending, 0 for market
	Stop     float64
	Target   float64
	Expiry   time.Time
}

// OrderResult is the broker's synchronous answer to a successful send.
type OrderResult struct {
	Ticket        int64
	ExecutedPrice float64
	ExecutedLots  float64
	Partial       bool
}

type RejectCode string

const (
	RejectRequote            RejectCode = "REQUOTE"
	RejectTimeout            RejectCode = "TIMEOUT"
	RejectDisconnect         RejectCode = "DISCONNECT"
	RejectInvalidStops       RejectCode = "INVALID_STOPS"
	RejectTradingDisabled    RejectCode = "TRADING_DISABLED"
	RejectUnsupportedFill    RejectCode = "UNSUPPORTED_FILL"
	RejectInsufficientMargin RejectCode = "INSUFFICIENT_MARGIN"
	RejectInvalidVolume      RejectCode = "INVALID_VOLUME"
)

// OrderReject is a typed broker rejection. Transient codes may be retried
// with a refreshed price; permanent codes must surface to the caller.
type OrderReject struct {
	Code    RejectCode
	Message string
}

func (e *OrderReject) Error() string {
	return fmt.Sprintf("order rejected (%s): %s", e.Code, e.Message)
}

func (e *OrderReject) Permanent() bool {
	switch e.Code {
	case RejectRequote, RejectTimeout, RejectDisconnect:
		return false
	}
	return true
}

// IsTransientReject reports whether err is a retryable broker rejection.
func IsTransientReject(err error) bool {
	var rej *OrderReject
	if errors.As(err, &rej) {
		return !rej.Permanent()
	}
	return false
}
