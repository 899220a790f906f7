package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

type RiskPolicy struct {
	MaxDailyLossPct   float64       `yaml:"max_daily_loss_pct"`  // fraction of equity, e.g. 0.02
	MaxWeeklyLossPct  float64       `yaml:"max_weekly_loss_pct"` // e.g. 0.05
	MaxDrawdownPct    float64       `yaml:"max_drawdown_pct"`    // from peak equity
	CooldownAfterLoss time.Duration `yaml:"cooldown_after_loss"`
	MaxPerBucket      int           `yaml:"max_per_bucket"` // correlated currency bucket
	MaxPerSymbol      int           `yaml:"max_per_symbol"`
	MaxOpenTotal      int           `yaml:"max_open_total"`
	AdvisorTimeout    time.Duration `yaml:"advisor_timeout"`
	// BucketOverrides maps a symbol to an explicit bucket list; unmapped
	// symbols fall back to splitting the pair into its two currencies.
	BucketOverrides map[string][]string `yaml:"bucket_overrides"`
}

func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		MaxDailyLossPct:   0.02,
		MaxWeeklyLossPct:  0.05,
		MaxDrawdownPct:    0.10,
		CooldownAfterLoss: 2 * time.Hour,
		MaxPerBucket:      2,
		MaxPerSymbol:      1,
		MaxOpenTotal:      4,
		AdvisorTimeout:    2 * time.Second,
	}
}

// Decision is the gate's tagged outcome. Denials are control flow, not
// errors, and are never retried automatically.
type Decision struct {
	Allowed   bool
	Reason    string
	RiskScale float64 // (0,1], 1 when unadjusted
}

func allowDecision(scale float64) Decision {
	return Decision{Allowed: true, RiskScale: scale}
}

func denyDecision(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// RiskGate is the single admission-control authority. It owns RiskState
// under one mutex: admission check-and-reserve and result recording are
// atomic with respect to each other.
type RiskGate struct {
	policy   RiskPolicy
	repo     domain.RiskStateRepository
	advisor  domain.Advisor
	notifier domain.Notifier
	metrics  MetricsRecorder
	logger   *zap.Logger

	mu           sync.Mutex
	state        *domain.RiskState
	openCount    int
	openBySymbol map[string]int
	bucketCount  map[string]int
}

func NewRiskGate(
	ctx context.Context,
	policy RiskPolicy,
	repo domain.RiskStateRepository,
	advisor domain.Advisor,
	notifier domain.Notifier,
	metrics MetricsRecorder,
	logger *zap.Logger,
	startEquity float64,
) (*RiskGate, error) {
	state, err := repo.LoadRiskState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk state: %w", err)
	}
	if state == nil {
		state = domain.NewRiskState(startEquity, time.Now())
		if err := repo.SaveRiskState(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to save initial risk state: %w", err)
		}
	}

	g := &RiskGate{
		policy:       policy,
		repo:         repo,
		advisor:      advisor,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		state:        state,
		openBySymbol: make(map[string]int),
		bucketCount:  make(map[string]int),
	}
	g.mu.Lock()
	g.rolloverLocked(time.Now())
	g.mu.Unlock()
	return g, nil
}

// CanOpen runs the ordered admission checks and, on allow, reserves the
// position slot atomically. The gate never fails open: any evaluation
// problem is a deny.
func (g *RiskGate) CanOpen(ctx context.Context, sig *domain.TradeSignal) (d Decision) {
	reserved := false
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("risk check panicked, denying", zap.Any("panic", r))
			if reserved {
				g.Release(sig.Symbol)
			}
			d = denyDecision("internal risk check failure")
		}
		if !d.Allowed {
			g.metrics.Denial(d.Reason)
		}
	}()

	if reason, ok := g.checkAndReserve(sig); !ok {
		return denyDecision(reason)
	}
	reserved = true

	// Advisory input comes last, only for signals that cleared every hard
	// check: no external call is made while a halt or cap would deny
	// anyway, and a veto never masks the real deny reason. It only ever
	// reduces risk.
	scale := g.consultAdvisor(ctx, sig)
	if scale == 0 {
		g.Release(sig.Symbol)
		return denyDecision("advisory veto")
	}

	g.logger.Info("admission allowed",
		zap.String("symbol", sig.Symbol),
		zap.String("signal", sig.ID),
		zap.Float64("risk_scale", scale))
	return allowDecision(scale)
}

// checkAndReserve runs the ordered hard checks and, when they all pass,
// reserves the slot in the same critical section.
func (g *RiskGate) checkAndReserve(sig *domain.TradeSignal) (reason string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	g.rolloverLocked(now)

	// 1. Global halts.
	switch {
	case g.state.HaltDaily:
		return "daily-loss halt active", false
	case g.state.HaltWeekly:
		return "weekly-loss halt active", false
	case g.state.HaltDrawdown:
		return "max-drawdown halt active", false
	}

	// 2. Symbol cooldown.
	if until, ok := g.state.CooldownUntil[sig.Symbol]; ok && until.After(now) {
		return fmt.Sprintf("cooldown until %s", until.UTC().Format(time.RFC3339)), false
	}

	// 3. Correlation buckets.
	for _, bucket := range g.bucketsFor(sig.Symbol) {
		if g.bucketCount[bucket]+1 > g.policy.MaxPerBucket {
			return fmt.Sprintf("correlation cap reached for bucket %s", bucket), false
		}
	}

	// 4. Position count caps.
	if g.openBySymbol[sig.Symbol]+1 > g.policy.MaxPerSymbol {
		return "symbol position cap reached", false
	}
	if g.openCount+1 > g.policy.MaxOpenTotal {
		return "portfolio position cap reached", false
	}

	g.reserveLocked(sig.Symbol)
	return "", true
}

// Release frees a reservation when the order was abandoned or failed
// before a position existed.
func (g *RiskGate) Release(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked(symbol)
}

// RecordResult feeds a closed trade back into the risk state. Idempotent
// by ticket: duplicate delivery leaves state unchanged.
func (g *RiskGate) RecordResult(ctx context.Context, res *domain.TradeResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.ProcessedTickets[res.Ticket] {
		g.logger.Debug("duplicate trade result ignored", zap.Int64("ticket", res.Ticket))
		return
	}

	now := time.Now()
	g.rolloverLocked(now)

	g.state.ProcessedTickets[res.Ticket] = true
	g.state.DailyPnL += res.Profit
	g.state.WeeklyPnL += res.Profit
	g.state.Equity += res.Profit
	if g.state.Equity > g.state.PeakEquity {
		g.state.PeakEquity = g.state.Equity
	}

	if res.Profit < 0 && g.policy.CooldownAfterLoss > 0 {
		g.state.CooldownUntil[res.Symbol] = now.Add(g.policy.CooldownAfterLoss)
		g.logger.Info("loss cooldown set",
			zap.String("symbol", res.Symbol),
			zap.Time("until", g.state.CooldownUntil[res.Symbol]))
	}

	ref := g.state.Equity
	if ref <= 0 {
		ref = g.state.PeakEquity
	}
	if !g.state.HaltDaily && g.state.DailyPnL <= -g.policy.MaxDailyLossPct*ref {
		g.setHaltLocked("daily-loss", &g.state.HaltDaily, true)
	}
	if !g.state.HaltWeekly && g.state.WeeklyPnL <= -g.policy.MaxWeeklyLossPct*ref {
		g.setHaltLocked("weekly-loss", &g.state.HaltWeekly, true)
	}
	if !g.state.HaltDrawdown && g.state.Drawdown() >= g.policy.MaxDrawdownPct {
		g.setHaltLocked("max-drawdown", &g.state.HaltDrawdown, true)
	}

	g.releaseLocked(res.Symbol)
	g.metrics.TradeRecorded(res.Win)
	g.metrics.Equity(g.state.Equity)
	g.persistLocked(ctx)
}

// EntryBlocked implements EntryBlocker for the watchlist: a symbol with
// an open/reserved position or a pending cooldown may not be listed.
func (g *RiskGate) EntryBlocked(symbol string) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openBySymbol[symbol] > 0 {
		return true, "open position"
	}
	if until, ok := g.state.CooldownUntil[symbol]; ok && until.After(time.Now()) {
		return true, "cooldown"
	}
	return false, ""
}

// SyncExposure rebuilds the exposure counters from broker truth. Used at
// startup, before any in-flight reservations exist.
func (g *RiskGate) SyncExposure(positions []*domain.OpenPosition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openCount = 0
	g.openBySymbol = make(map[string]int)
	g.bucketCount = make(map[string]int)
	for _, p := range positions {
		g.reserveLocked(p.Symbol)
	}
}

// UpdateEquity refreshes equity from the broker and re-evaluates the
// drawdown halt.
func (g *RiskGate) UpdateEquity(ctx context.Context, equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Equity = equity
	if equity > g.state.PeakEquity {
		g.state.PeakEquity = equity
	}
	if !g.state.HaltDrawdown && g.state.Drawdown() >= g.policy.MaxDrawdownPct {
		g.setHaltLocked("max-drawdown", &g.state.HaltDrawdown, true)
	}
	g.metrics.Equity(equity)
	g.persistLocked(ctx)
}

// ResetDrawdownHalt is the manual clear for the drawdown halt. Loss halts
// clear on their own day/week rollover; nothing clears implicitly.
func (g *RiskGate) ResetDrawdownHalt(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.HaltDrawdown {
		return
	}
	g.setHaltLocked("max-drawdown", &g.state.HaltDrawdown, false)
	g.state.PeakEquity = g.state.Equity
	g.persistLocked(ctx)
}

// Snapshot returns a copy of the durable state plus live exposure counts.
func (g *RiskGate) Snapshot() (domain.RiskState, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *g.state
	cp.CooldownUntil = make(map[string]time.Time, len(g.state.CooldownUntil))
	for k, v := range g.state.CooldownUntil {
		cp.CooldownUntil[k] = v
	}
	cp.ProcessedTickets = make(map[int64]bool, len(g.state.ProcessedTickets))
	for k, v := range g.state.ProcessedTickets {
		cp.ProcessedTickets[k] = v
	}
	return cp, g.openCount
}

func (g *RiskGate) consultAdvisor(ctx context.Context, sig *domain.TradeSignal) float64 {
	if g.advisor == nil {
		return 1
	}
	actx, cancel := context.WithTimeout(ctx, g.policy.AdvisorTimeout)
	defer cancel()

	advice, err := g.advisor.Assess(actx, sig)
	if err != nil || advice == nil {
		// Absence of advice is "no adjustment", never a deny.
		if err != nil {
			g.logger.Warn("advisor unavailable", zap.Error(err))
		}
		return 1
	}
	if advice.Veto {
		return 0
	}
	scale := advice.RiskScale
	if scale <= 0 || scale > 1 {
		// The gate never trusts an external signal to raise risk.
		return 1
	}
	return scale
}

func (g *RiskGate) bucketsFor(symbol string) []string {
	if buckets, ok := g.policy.BucketOverrides[symbol]; ok {
		return buckets
	}
	if len(symbol) >= 6 {
		return []string{symbol[:3], symbol[3:6]}
	}
	return []string{symbol}
}

func (g *RiskGate) reserveLocked(symbol string) {
	g.openCount++
	g.openBySymbol[symbol]++
	for _, bucket := range g.bucketsFor(symbol) {
		g.bucketCount[bucket]++
	}
}

func (g *RiskGate) releaseLocked(symbol string) {
	if g.openBySymbol[symbol] == 0 {
		return // nothing reserved, e.g. result for an adopted pre-sync trade
	}
	g.openCount--
	g.openBySymbol[symbol]--
	for _, bucket := range g.bucketsFor(symbol) {
		if g.bucketCount[bucket] > 0 {
			g.bucketCount[bucket]--
		}
	}
}

func (g *RiskGate) setHaltLocked(reason string, flag *bool, active bool) {
	*flag = active
	g.logger.Warn("halt state changed", zap.String("reason", reason), zap.Bool("active", active))
	g.metrics.HaltChanged(reason, active)
	if g.notifier != nil {
		g.notifier.HaltChanged(reason, active)
	}
}

// rolloverLocked resets the P&L windows when the trading day/week turns
// over; the matching loss halt clears with its window, per its own reset
// rule.
func (g *RiskGate) rolloverLocked(now time.Time) {
	changed := false
	if day := domain.TradingDay(now); day != g.state.Day {
		g.state.Day = day
		g.state.DailyPnL = 0
		if g.state.HaltDaily {
			g.setHaltLocked("daily-loss", &g.state.HaltDaily, false)
		}
		changed = true
	}
	if week := domain.TradingWeek(now); week != g.state.Week {
		g.state.Week = week
		g.state.WeeklyPnL = 0
		if g.state.HaltWeekly {
			g.setHaltLocked("weekly-loss", &g.state.HaltWeekly, false)
		}
		// The ticket guard only needs to span the longest P&L window;
		// entries from past weeks are pruned so the persisted map cannot
		// grow without bound.
		g.state.ProcessedTickets = make(map[int64]bool)
		changed = true
	}
	if changed {
		g.persistLocked(context.Background())
	}
}

func (g *RiskGate) persistLocked(ctx context.Context) {
	if err := g.repo.SaveRiskState(ctx, g.state); err != nil {
		// State stays correct in memory; persistence is retried on the
		// next mutation.
		g.logger.Error("failed to persist risk state", zap.Error(err))
	}
}
