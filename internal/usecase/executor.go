package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

type ExecutorConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	OrderTimeout time.Duration `yaml:"order_timeout"`
	FillMode     string        `yaml:"fill_mode"`
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries:   3,
		RetryDelay:   500 * time.Millisecond,
		OrderTimeout: 10 * time.Second,
		FillMode:     "IOC",
	}
}

// ExecutionCoordinator validates a sized order against broker constraints,
// submits it, and normalizes the outcome. Transient rejects are retried
// with a refreshed price up to a fixed bound; permanent rejects surface
// immediately and the signal is discarded.
type ExecutionCoordinator struct {
	broker  domain.Broker
	metrics MetricsRecorder
	logger  *zap.Logger
	cfg     ExecutorConfig
}

func NewExecutionCoordinator(broker domain.Broker, metrics MetricsRecorder, logger *zap.Logger, cfg ExecutorConfig) *ExecutionCoordinator {
	return &ExecutionCoordinator{broker: broker, metrics: metrics, logger: logger, cfg: cfg}
}

// Execute submits the sized order and returns the confirmed open position.
func (e *ExecutionCoordinator) Execute(ctx context.Context, order *domain.SizedOrder) (*domain.OpenPosition, error) {
	sig := order.Signal
	spec, err := e.broker.GetSymbolSpec(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch symbol spec: %w", err)
	}
	if err := e.preValidate(sig, order.Lots, spec); err != nil {
		return nil, err
	}

	req := &domain.OrderRequest{
		ClientID: uuid.New().String(),
		Symbol:   sig.Symbol,
		Side:     sig.Side,
		Kind:     sig.Kind,
		Lots:     order.Lots,
		Stop:     sig.Stop,
		Target:   sig.Target,
		Expiry:   sig.Expiry,
	}
	req.Price = sig.Entry // trigger for pending, reference price for market

	result, err := e.sendWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	pos := &domain.OpenPosition{
		Ticket:     result.Ticket,
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Lots:       result.ExecutedLots,
		EntryPrice: result.ExecutedPrice,
		Stop:       sig.Stop,
		Target:     sig.Target,
		OpenedAt:   time.Now(),
		EntryType:  sig.EntryType,
		ClientID:   req.ClientID,
	}
	if result.Partial {
		e.logger.Warn("partial fill accepted",
			zap.String("symbol", sig.Symbol),
			zap.Float64("requested", order.Lots),
			zap.Float64("executed", result.ExecutedLots))
	}
	e.metrics.OrderPlaced(string(sig.Kind), string(sig.Side))
	e.logger.Info("order executed",
		zap.Int64("ticket", pos.Ticket),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("lots", pos.Lots),
		zap.Float64("price", pos.EntryPrice))
	return pos, nil
}

// Modify updates stop/target, skipping the call when the broker already
// reflects the requested values.
func (e *ExecutionCoordinator) Modify(ctx context.Context, pos *domain.OpenPosition, stop, target float64) error {
	if priceEqual(pos.Stop, stop) && priceEqual(pos.Target, target) {
		return nil
	}
	if err := e.broker.ModifyPosition(ctx, pos.Ticket, stop, target); err != nil {
		return fmt.Errorf("failed to modify position %d: %w", pos.Ticket, err)
	}
	pos.Stop = stop
	pos.Target = target
	e.logger.Info("position modified",
		zap.Int64("ticket", pos.Ticket),
		zap.Float64("stop", stop),
		zap.Float64("target", target))
	return nil
}

// Close closes the given volume; lots <= 0 closes the full position.
func (e *ExecutionCoordinator) Close(ctx context.Context, pos *domain.OpenPosition, lots float64) (*domain.OrderResult, error) {
	result, err := e.broker.ClosePosition(ctx, pos.Ticket, lots)
	if err != nil {
		return nil, fmt.Errorf("failed to close position %d: %w", pos.Ticket, err)
	}
	return result, nil
}

func (e *ExecutionCoordinator) preValidate(sig *domain.TradeSignal, lots float64, spec *domain.SymbolSpec) error {
	if lots < spec.MinLot || lots > spec.MaxLot {
		return &domain.OrderReject{Code: domain.RejectInvalidVolume,
			Message: fmt.Sprintf("lots %.2f outside [%.2f, %.2f]", lots, spec.MinLot, spec.MaxLot)}
	}
	stopDist := sig.Entry - sig.Stop
	if stopDist < 0 {
		stopDist = -stopDist
	}
	if spec.MinStopDistance > 0 && stopDist < spec.MinStopDistance {
		return &domain.OrderReject{Code: domain.RejectInvalidStops,
			Message: fmt.Sprintf("stop distance %.5f below broker minimum %.5f", stopDist, spec.MinStopDistance)}
	}
	if len(spec.FillModes) > 0 && !spec.SupportsFillMode(e.cfg.FillMode) {
		return &domain.OrderReject{Code: domain.RejectUnsupportedFill,
			Message: fmt.Sprintf("fill mode %s not supported", e.cfg.FillMode)}
	}
	return nil
}

func (e *ExecutionCoordinator) sendWithRetry(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.cfg.RetryDelay):
			}
			// Requotes mean our reference price is stale; refresh it.
			if req.Kind == domain.OrderMarket {
				if tick, err := e.broker.GetTick(ctx, req.Symbol); err == nil {
					if req.Side == domain.SideLong {
						req.Price = tick.Ask
					} else {
						req.Price = tick.Bid
					}
				}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
		result, err := e.broker.SendOrder(callCtx, req)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) {
			// Unknown outcome: the order may have gone through. Reconcile
			// against broker truth before assuming failure; never resend
			// blindly.
			if pos := e.findByClientID(ctx, req.ClientID); pos != nil {
				e.logger.Warn("order timed out but position exists, adopting",
					zap.Int64("ticket", pos.Ticket), zap.String("client_id", req.ClientID))
				return &domain.OrderResult{
					Ticket:        pos.Ticket,
					ExecutedPrice: pos.EntryPrice,
					ExecutedLots:  pos.Lots,
				}, nil
			}
			e.logger.Warn("order timed out with no position, retrying",
				zap.String("symbol", req.Symbol), zap.Int("attempt", attempt+1))
			continue
		}

		if domain.IsTransientReject(err) {
			e.logger.Warn("transient order rejection, retrying",
				zap.String("symbol", req.Symbol),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("order failed after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
}

func (e *ExecutionCoordinator) findByClientID(ctx context.Context, clientID string) *domain.OpenPosition {
	positions, err := e.broker.OpenPositions(ctx)
	if err != nil {
		return nil
	}
	for _, p := range positions {
		if p.ClientID == clientID {
			return p
		}
	}
	return nil
}

func priceEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
