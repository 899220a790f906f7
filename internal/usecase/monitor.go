package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

type MonitorConfig struct {
	// Trailing starts once the trade is this many R in profit and keeps
	// the stop this many R behind the best price seen.
	TrailStartRR    float64 `yaml:"trail_start_rr"`
	TrailDistanceRR float64 `yaml:"trail_distance_rr"`
	// One partial exit at this profit multiple, taking this fraction off.
	PartialAtRR     float64 `yaml:"partial_at_rr"`
	PartialFraction float64 `yaml:"partial_fraction"`
	// Positions are flattened after this UTC hour on Friday.
	WeekendCloseHourUTC int `yaml:"weekend_close_hour_utc"`
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		TrailStartRR:        1.0,
		TrailDistanceRR:     1.0,
		PartialAtRR:         1.0,
		PartialFraction:     0.5,
		WeekendCloseHourUTC: 20,
	}
}

// ResultSink receives closed-trade results and reservation releases; the
// risk gate implements it.
type ResultSink interface {
	RecordResult(ctx context.Context, res *domain.TradeResult)
	Release(symbol string)
}

type trackedPosition struct {
	pos         *domain.OpenPosition
	initialRisk float64 // entry-to-stop distance at tracking time
	bestPrice   float64
}

// pendingOrder is a resting order awaiting a fill. It holds a risk
// reservation but is not a position: it never produces a TradeResult.
type pendingOrder struct {
	Ticket int64
	Symbol string
	Expiry time.Time
}

// LifecycleMonitor owns open positions from fill confirmation to closure.
// A frequent price-driven pass handles trailing and partial exits; a
// slower reconciliation pass treats the broker as authoritative and
// detects closures the local state missed. All reads and writes of a
// tracked position go through m.mu; broker calls run on copies.
type LifecycleMonitor struct {
	broker   domain.Broker
	executor *ExecutionCoordinator
	sink     ResultSink
	journal  domain.JournalRepository
	posRepo  domain.PositionRepository
	notifier domain.Notifier
	logger   *zap.Logger
	cfg      MonitorConfig

	mu        sync.Mutex
	tracked   map[int64]*trackedPosition
	pending   map[int64]*pendingOrder
	finalized map[int64]bool
}

func NewLifecycleMonitor(
	broker domain.Broker,
	executor *ExecutionCoordinator,
	sink ResultSink,
	journal domain.JournalRepository,
	posRepo domain.PositionRepository,
	notifier domain.Notifier,
	logger *zap.Logger,
	cfg MonitorConfig,
) *LifecycleMonitor {
	return &LifecycleMonitor{
		broker:    broker,
		executor:  executor,
		sink:      sink,
		journal:   journal,
		posRepo:   posRepo,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
		tracked:   make(map[int64]*trackedPosition),
		pending:   make(map[int64]*pendingOrder),
		finalized: make(map[int64]bool),
	}
}

// Track adopts a confirmed open position.
func (m *LifecycleMonitor) Track(ctx context.Context, pos *domain.OpenPosition) {
	risk := pos.EntryPrice - pos.Stop
	if risk < 0 {
		risk = -risk
	}

	m.mu.Lock()
	m.tracked[pos.Ticket] = &trackedPosition{pos: pos, initialRisk: risk, bestPrice: pos.EntryPrice}
	cp := *pos
	m.mu.Unlock()

	if err := m.posRepo.SavePosition(ctx, &cp); err != nil {
		m.logger.Error("failed to persist tracked position", zap.Int64("ticket", cp.Ticket), zap.Error(err))
	}
	if m.notifier != nil {
		m.notifier.TradeOpened(&cp)
	}
	m.logger.Info("tracking position",
		zap.Int64("ticket", cp.Ticket),
		zap.String("symbol", cp.Symbol),
		zap.Float64("lots", cp.Lots))
}

// TrackPending registers a resting order that holds a risk reservation
// but has not filled. Reconciliation promotes it to a tracked position
// when the ticket shows up in the broker's open set, and drops it
// (releasing the reservation) once it expires unfilled.
func (m *LifecycleMonitor) TrackPending(ticket int64, sig *domain.TradeSignal) {
	m.mu.Lock()
	m.pending[ticket] = &pendingOrder{Ticket: ticket, Symbol: sig.Symbol, Expiry: sig.Expiry}
	m.mu.Unlock()
	m.logger.Info("tracking pending order",
		zap.Int64("ticket", ticket),
		zap.String("symbol", sig.Symbol),
		zap.Time("expiry", sig.Expiry))
}

// Restore reloads tracked positions persisted before a restart. The next
// reconciliation pass repairs any divergence from broker truth.
func (m *LifecycleMonitor) Restore(ctx context.Context) error {
	positions, err := m.posRepo.ListPositions(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pos := range positions {
		risk := pos.EntryPrice - pos.Stop
		if risk < 0 {
			risk = -risk
		}
		m.tracked[pos.Ticket] = &trackedPosition{pos: pos, initialRisk: risk, bestPrice: pos.EntryPrice}
	}
	m.logger.Info("restored tracked positions", zap.Int("count", len(positions)))
	return nil
}

// Tracked returns a snapshot of tracked positions.
func (m *LifecycleMonitor) Tracked() []*domain.OpenPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.OpenPosition, 0, len(m.tracked))
	for _, tp := range m.tracked {
		cp := *tp.pos
		out = append(out, &cp)
	}
	return out
}

// FastPass is the frequent lightweight pass, driven by incoming ticks.
// Decisions are taken under the lock on a copy; broker calls happen
// outside it and write back through the ticket.
func (m *LifecycleMonitor) FastPass(ctx context.Context, tick domain.Tick) {
	m.mu.Lock()
	var tp *trackedPosition
	for _, cand := range m.tracked {
		if cand.pos.Symbol == tick.Symbol {
			tp = cand
			break
		}
	}
	if tp == nil || tp.initialRisk <= 0 {
		m.mu.Unlock()
		return
	}

	pos := *tp.pos
	price := tick.Bid
	if pos.Side == domain.SideShort {
		price = tick.Ask
	}
	if pos.Side == domain.SideLong && price > tp.bestPrice {
		tp.bestPrice = price
	}
	if pos.Side == domain.SideShort && price < tp.bestPrice {
		tp.bestPrice = price
	}

	profit := price - pos.EntryPrice
	if pos.Side == domain.SideShort {
		profit = -profit
	}
	profitR := profit / tp.initialRisk

	wantPartial := m.cfg.PartialFraction > 0 && !pos.PartialDone && profitR >= m.cfg.PartialAtRR

	var newStop float64
	wantTrail := false
	if profitR >= m.cfg.TrailStartRR {
		if pos.Side == domain.SideLong {
			newStop = tp.bestPrice - m.cfg.TrailDistanceRR*tp.initialRisk
			wantTrail = newStop > pos.Stop // stops only ever tighten
		} else {
			newStop = tp.bestPrice + m.cfg.TrailDistanceRR*tp.initialRisk
			wantTrail = newStop < pos.Stop
		}
	}
	m.mu.Unlock()

	if wantPartial {
		m.takePartial(ctx, pos.Ticket)
	}
	if wantTrail {
		m.applyTrail(ctx, pos.Ticket, newStop)
	}
}

// WeekendPass flattens positions ahead of the market-closure window.
func (m *LifecycleMonitor) WeekendPass(ctx context.Context, now time.Time) {
	utc := now.UTC()
	if utc.Weekday() != time.Friday || utc.Hour() < m.cfg.WeekendCloseHourUTC {
		return
	}

	for _, pos := range m.snapshotTracked() {
		m.logger.Info("weekend protection close", zap.Int64("ticket", pos.Ticket), zap.String("symbol", pos.Symbol))
		m.closeNow(ctx, pos, domain.ExitWeekend)
	}
}

// ReconcilePass is the slower thorough pass. Broker state is
// authoritative: pending orders promote on fill and lapse on expiry,
// unknown broker positions are adopted, tracked tickets missing from the
// broker are finalized exactly once.
func (m *LifecycleMonitor) ReconcilePass(ctx context.Context) {
	positions, err := m.broker.OpenPositions(ctx)
	if err != nil {
		m.logger.Error("reconciliation failed to fetch positions", zap.Error(err))
		return
	}

	open := make(map[int64]*domain.OpenPosition, len(positions))
	for _, p := range positions {
		open[p.Ticket] = p
	}

	now := time.Now()
	m.mu.Lock()
	var filled []*domain.OpenPosition
	var lapsed []*pendingOrder
	for ticket, po := range m.pending {
		if p, ok := open[ticket]; ok {
			delete(m.pending, ticket)
			filled = append(filled, p)
		} else if !po.Expiry.IsZero() && now.After(po.Expiry) {
			delete(m.pending, ticket)
			lapsed = append(lapsed, po)
		}
	}
	promoted := make(map[int64]bool, len(filled))
	for _, p := range filled {
		promoted[p.Ticket] = true
	}

	var closed []domain.OpenPosition
	for ticket, tp := range m.tracked {
		if _, ok := open[ticket]; !ok {
			closed = append(closed, *tp.pos)
		}
	}
	var adopted []*domain.OpenPosition
	for _, p := range positions {
		if _, ok := m.tracked[p.Ticket]; !ok && !m.finalized[p.Ticket] && !promoted[p.Ticket] {
			adopted = append(adopted, p)
		}
	}
	m.mu.Unlock()

	for _, p := range filled {
		m.logger.Info("pending order filled", zap.Int64("ticket", p.Ticket), zap.String("symbol", p.Symbol))
		m.Track(ctx, p)
	}
	for _, po := range lapsed {
		m.logger.Info("pending order expired unfilled",
			zap.Int64("ticket", po.Ticket), zap.String("symbol", po.Symbol))
		m.sink.Release(po.Symbol)
	}

	for _, p := range adopted {
		m.logger.Warn("adopting untracked broker position", zap.Int64("ticket", p.Ticket), zap.String("symbol", p.Symbol))
		m.Track(ctx, p)
	}

	for _, pos := range closed {
		result := m.buildResult(ctx, pos)
		m.finalize(ctx, result)
	}
}

func (m *LifecycleMonitor) takePartial(ctx context.Context, ticket int64) {
	m.mu.Lock()
	tp, ok := m.tracked[ticket]
	if !ok || tp.pos.PartialDone {
		m.mu.Unlock()
		return
	}
	pos := *tp.pos
	m.mu.Unlock()

	lots := pos.Lots * m.cfg.PartialFraction
	if _, err := m.executor.Close(ctx, &pos, lots); err != nil {
		m.logger.Error("partial close failed", zap.Int64("ticket", ticket), zap.Error(err))
		return
	}

	m.mu.Lock()
	tp, ok = m.tracked[ticket]
	if !ok {
		m.mu.Unlock()
		return
	}
	tp.pos.PartialDone = true
	tp.pos.Lots -= lots
	pos = *tp.pos
	m.mu.Unlock()

	if err := m.posRepo.SavePosition(ctx, &pos); err != nil {
		m.logger.Error("failed to persist partial exit", zap.Int64("ticket", ticket), zap.Error(err))
	}
	m.logger.Info("partial exit taken", zap.Int64("ticket", ticket), zap.Float64("lots", lots))
}

func (m *LifecycleMonitor) applyTrail(ctx context.Context, ticket int64, newStop float64) {
	m.mu.Lock()
	tp, ok := m.tracked[ticket]
	if !ok {
		m.mu.Unlock()
		return
	}
	pos := *tp.pos
	m.mu.Unlock()

	if err := m.executor.Modify(ctx, &pos, newStop, pos.Target); err != nil {
		m.logger.Error("trailing adjust failed", zap.Int64("ticket", ticket), zap.Error(err))
		return
	}

	m.mu.Lock()
	tp, ok = m.tracked[ticket]
	if !ok {
		m.mu.Unlock()
		return
	}
	tp.pos.Stop = newStop
	pos = *tp.pos
	m.mu.Unlock()

	if err := m.posRepo.SavePosition(ctx, &pos); err != nil {
		m.logger.Error("failed to persist trailing stop", zap.Int64("ticket", ticket), zap.Error(err))
	}
}

func (m *LifecycleMonitor) closeNow(ctx context.Context, pos domain.OpenPosition, reason domain.ExitReason) {
	if _, err := m.executor.Close(ctx, &pos, 0); err != nil {
		m.logger.Error("close failed, reconciliation will pick it up",
			zap.Int64("ticket", pos.Ticket), zap.Error(err))
		return
	}
	result := m.buildResult(ctx, pos)
	result.Reason = reason
	m.finalize(ctx, result)
}

// buildResult assembles the TradeResult from the broker's realized deals.
func (m *LifecycleMonitor) buildResult(ctx context.Context, pos domain.OpenPosition) *domain.TradeResult {
	result := &domain.TradeResult{
		Ticket:     pos.Ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Lots:       pos.Lots,
		EntryPrice: pos.EntryPrice,
		Reason:     domain.ExitBroker,
		EntryType:  pos.EntryType,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   time.Now(),
	}

	deals, err := m.broker.DealsByTicket(ctx, pos.Ticket)
	if err != nil || len(deals) == 0 {
		m.logger.Warn("no deal history for closed position",
			zap.Int64("ticket", pos.Ticket), zap.Error(err))
		return result
	}

	for _, d := range deals {
		result.Profit += d.Profit
	}
	last := deals[len(deals)-1]
	result.ExitPrice = last.Price
	result.Reason = last.Reason
	result.ClosedAt = last.Time
	result.Win = result.Profit > 0
	return result
}

// finalize reports the closure exactly once: the ticket guard makes a
// repeated reconciliation of the same closure a no-op.
func (m *LifecycleMonitor) finalize(ctx context.Context, result *domain.TradeResult) {
	m.mu.Lock()
	if m.finalized[result.Ticket] {
		m.mu.Unlock()
		return
	}
	m.finalized[result.Ticket] = true
	delete(m.tracked, result.Ticket)
	m.mu.Unlock()

	m.sink.RecordResult(ctx, result)
	if err := m.journal.AppendTradeResult(ctx, result); err != nil {
		m.logger.Error("failed to journal trade result", zap.Int64("ticket", result.Ticket), zap.Error(err))
	}
	if err := m.posRepo.DeletePosition(ctx, result.Ticket); err != nil {
		m.logger.Error("failed to delete persisted position", zap.Int64("ticket", result.Ticket), zap.Error(err))
	}
	if m.notifier != nil {
		m.notifier.TradeClosed(result)
	}
	m.logger.Info("position closed",
		zap.Int64("ticket", result.Ticket),
		zap.String("symbol", result.Symbol),
		zap.Float64("profit", result.Profit),
		zap.String("reason", string(result.Reason)))
}

func (m *LifecycleMonitor) snapshotTracked() []domain.OpenPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OpenPosition, 0, len(m.tracked))
	for _, tp := range m.tracked {
		out = append(out, *tp.pos)
	}
	return out
}
