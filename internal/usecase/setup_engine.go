package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

type setupPhase string

const (
	phaseIdle      setupPhase = "IDLE"
	phaseFast      setupPhase = "FAST_CANDIDATE"
	phaseConfirmed setupPhase = "DEEP_CONFIRMED"
	phaseArmed     setupPhase = "ARMED"
)

type SetupConfig struct {
	// ConfirmWindowBars bounds how long a fast candidate may wait for the
	// deep confirmation to pass before reverting to idle.
	ConfirmWindowBars int `yaml:"confirm_window_bars"`
	// ArmedWindowBars bounds how long an armed setup waits for its trigger.
	ArmedWindowBars int `yaml:"armed_window_bars"`
	// Precedence decides which family claims the symbol slot when several
	// fast checks pass on the same bar. Fixed order, never "first found".
	Precedence    []domain.SetupFamily `yaml:"precedence"`
	PendingExpiry time.Duration        `yaml:"pending_expiry"`

	Breakout   BreakoutConfig   `yaml:"breakout"`
	Pullback   PullbackConfig   `yaml:"pullback"`
	Exhaustion ExhaustionConfig `yaml:"exhaustion"`
}

func DefaultSetupConfig() SetupConfig {
	return SetupConfig{
		ConfirmWindowBars: 5,
		ArmedWindowBars:   12,
		Precedence:        []domain.SetupFamily{domain.FamilyBreakout, domain.FamilyPullback, domain.FamilyExhaustion},
		PendingExpiry:     2 * time.Hour,
		Breakout:          DefaultBreakoutConfig(),
		Pullback:          DefaultPullbackConfig(),
		Exhaustion:        DefaultExhaustionConfig(),
	}
}

// SymbolState is the per-symbol candidate setup. One instance per symbol,
// owned exclusively by the engine, reset to idle after firing or
// invalidation.
type SymbolState struct {
	Symbol       string
	Family       domain.SetupFamily
	Phase        setupPhase
	Side         domain.Side
	Kind         domain.OrderKind
	Trigger      float64
	Invalidation float64
	Stop         float64
	Target       float64
	PhaseSeq     int64 // bar sequence when the current phase was entered
}

// SetupEngine is the sniper-path state machine. Bar closes drive the full
// detect/confirm/arm progression; intrabar ticks only evaluate the cheap
// armed-trigger crossing.
type SetupEngine struct {
	cfg       SetupConfig
	logger    *zap.Logger
	detectors []familyDetector

	mu     sync.Mutex
	states map[string]*SymbolState
	seq    map[string]int64
}

func NewSetupEngine(cfg SetupConfig, logger *zap.Logger) *SetupEngine {
	byFamily := map[domain.SetupFamily]familyDetector{
		domain.FamilyBreakout:   newBreakoutDetector(cfg.Breakout),
		domain.FamilyPullback:   newPullbackDetector(cfg.Pullback),
		domain.FamilyExhaustion: newExhaustionDetector(cfg.Exhaustion),
	}
	var detectors []familyDetector
	for _, fam := range cfg.Precedence {
		if d, ok := byFamily[fam]; ok {
			detectors = append(detectors, d)
		}
	}

	return &SetupEngine{
		cfg:       cfg,
		logger:    logger,
		detectors: detectors,
		states:    make(map[string]*SymbolState),
		seq:       make(map[string]int64),
	}
}

// OnBarClose advances the symbol's state machine on a new closed bar of
// the trigger timeframe. bars is the recent series ending with that bar.
// Returns an intent when an armed setup fires, nil otherwise.
func (e *SetupEngine) OnBarClose(symbol string, bars []domain.Bar) *domain.ExecutionIntent {
	if len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]

	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq[symbol]++
	seq := e.seq[symbol]

	st, ok := e.states[symbol]
	if !ok {
		st = &SymbolState{Symbol: symbol, Phase: phaseIdle}
		e.states[symbol] = st
	}

	switch st.Phase {
	case phaseArmed:
		if intent := e.checkArmedBar(st, last, seq); intent != nil {
			return intent
		}
	case phaseFast:
		e.advanceFast(st, bars, seq, last.Time)
		if st.Phase == phaseArmed && st.Kind == domain.OrderPending {
			// Pending setups fire at arming: the order itself waits at the
			// trigger level.
			return e.fire(st, last.Time)
		}
	case phaseIdle:
		e.scanFast(st, bars, seq)
	}
	return nil
}

// OnTick is the cheap intrabar path: only armed market setups react.
func (e *SetupEngine) OnTick(tick domain.Tick) *domain.ExecutionIntent {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[tick.Symbol]
	if !ok || st.Phase != phaseArmed || st.Kind != domain.OrderMarket {
		return nil
	}

	if st.Side == domain.SideLong {
		if tick.Bid <= st.Invalidation {
			e.invalidate(st, tick.Bid)
			return nil
		}
		if tick.Ask >= st.Trigger {
			return e.fire(st, tick.Time)
		}
	} else {
		if tick.Ask >= st.Invalidation {
			e.invalidate(st, tick.Ask)
			return nil
		}
		if tick.Bid <= st.Trigger {
			return e.fire(st, tick.Time)
		}
	}
	return nil
}

// State returns a copy of the symbol's current setup state.
func (e *SetupEngine) State(symbol string) (SymbolState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[symbol]
	if !ok {
		return SymbolState{}, false
	}
	return *st, true
}

// ResetSymbol drops the candidate, used when the symbol's feed goes stale.
func (e *SetupEngine) ResetSymbol(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[symbol]; ok {
		e.toIdle(st)
	}
}

func (e *SetupEngine) scanFast(st *SymbolState, bars []domain.Bar, seq int64) {
	for _, d := range e.detectors {
		if d.FastCheck(bars) {
			st.Family = d.Family()
			st.Phase = phaseFast
			st.PhaseSeq = seq
			e.logger.Debug("setup fast candidate",
				zap.String("symbol", st.Symbol),
				zap.String("family", string(st.Family)))
			return
		}
	}
}

func (e *SetupEngine) advanceFast(st *SymbolState, bars []domain.Bar, seq int64, now time.Time) {
	if seq-st.PhaseSeq > int64(e.cfg.ConfirmWindowBars) {
		e.logger.Debug("setup candidate expired before confirmation",
			zap.String("symbol", st.Symbol),
			zap.String("family", string(st.Family)))
		e.toIdle(st)
		return
	}

	detector := e.detectorFor(st.Family)
	if detector == nil {
		e.toIdle(st)
		return
	}
	plan, ok := detector.Confirm(bars)
	if !ok {
		return // stay fast-candidate until the window runs out
	}

	st.Phase = phaseConfirmed
	st.Side = plan.Side
	st.Kind = plan.Kind
	st.Trigger = plan.Trigger
	st.Invalidation = plan.Invalidation
	st.Stop = plan.Stop
	st.Target = plan.Target
	e.logger.Info("setup deep-confirmed",
		zap.String("symbol", st.Symbol),
		zap.String("family", string(st.Family)),
		zap.String("side", string(st.Side)),
		zap.Float64("trigger", st.Trigger))

	// Trigger level computed, not yet touched: armed.
	st.Phase = phaseArmed
	st.PhaseSeq = seq
}

func (e *SetupEngine) checkArmedBar(st *SymbolState, bar domain.Bar, seq int64) *domain.ExecutionIntent {
	if seq-st.PhaseSeq > int64(e.cfg.ArmedWindowBars) {
		e.logger.Debug("armed setup expired",
			zap.String("symbol", st.Symbol),
			zap.String("family", string(st.Family)))
		e.toIdle(st)
		return nil
	}

	if st.Side == domain.SideLong {
		if bar.Close <= st.Invalidation {
			e.invalidate(st, bar.Close)
			return nil
		}
		if bar.Close >= st.Trigger {
			return e.fire(st, bar.Time)
		}
	} else {
		if bar.Close >= st.Invalidation {
			e.invalidate(st, bar.Close)
			return nil
		}
		if bar.Close <= st.Trigger {
			return e.fire(st, bar.Time)
		}
	}
	return nil
}

func (e *SetupEngine) fire(st *SymbolState, now time.Time) *domain.ExecutionIntent {
	intent := &domain.ExecutionIntent{
		ID:        uuid.New().String(),
		Symbol:    st.Symbol,
		Side:      st.Side,
		Kind:      st.Kind,
		Trigger:   st.Trigger,
		Stop:      st.Stop,
		Target:    st.Target,
		Family:    st.Family,
		CreatedAt: now,
	}
	if st.Kind == domain.OrderPending {
		intent.Expiry = now.Add(e.cfg.PendingExpiry)
	}
	e.logger.Info("setup triggered",
		zap.String("symbol", st.Symbol),
		zap.String("family", string(st.Family)),
		zap.String("side", string(st.Side)),
		zap.String("kind", string(st.Kind)),
		zap.Float64("trigger", st.Trigger))
	e.toIdle(st)
	return intent
}

func (e *SetupEngine) invalidate(st *SymbolState, price float64) {
	e.logger.Info("armed setup invalidated",
		zap.String("symbol", st.Symbol),
		zap.String("family", string(st.Family)),
		zap.Float64("price", price),
		zap.Float64("invalidation", st.Invalidation))
	e.toIdle(st)
}

func (e *SetupEngine) toIdle(st *SymbolState) {
	st.Phase = phaseIdle
	st.Family = ""
	st.Side = ""
	st.Kind = ""
	st.Trigger, st.Invalidation, st.Stop, st.Target = 0, 0, 0, 0
}

func (e *SetupEngine) detectorFor(family domain.SetupFamily) familyDetector {
	for _, d := range e.detectors {
		if d.Family() == family {
			return d
		}
	}
	return nil
}
