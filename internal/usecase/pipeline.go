package usecase

import (
	"context"
	"sync"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeConfluence Mode = "confluence"
	ModeSniper     Mode = "sniper"
)

type PipelineConfig struct {
	Mode             Mode               `yaml:"mode"`
	Symbols          []string           `yaml:"symbols"`
	Timeframes       []domain.Timeframe `yaml:"timeframes"`        // analysis timeframes, confluence mode
	TriggerTimeframe domain.Timeframe   `yaml:"trigger_timeframe"` // drives bar-close evaluation
	BarHistory       int                `yaml:"bar_history"`
	Workers          int                `yaml:"workers"`

	// Confidence-to-probability mapping for Kelly sizing. Sniper intents
	// carry no confluence score and use the fixed estimate.
	BaseWinProbability   float64 `yaml:"base_win_probability"`
	WinProbabilitySlope  float64 `yaml:"win_probability_slope"` // added per confidence point
	SniperWinProbability float64 `yaml:"sniper_win_probability"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Mode:                 ModeConfluence,
		Timeframes:           []domain.Timeframe{domain.TimeframeM15, domain.TimeframeH1, domain.TimeframeH4},
		TriggerTimeframe:     domain.TimeframeM15,
		BarHistory:           100,
		Workers:              4,
		BaseWinProbability:   0.45,
		WinProbabilitySlope:  0.002,
		SniperWinProbability: 0.55,
	}
}

// Pipeline is the control loop for one operating mode. Symbols are
// evaluated by a bounded worker pool; per-symbol evaluation is serialized
// so no symbol's state machine ever races itself. All admissions funnel
// through the risk gate.
type Pipeline struct {
	cfg       PipelineConfig
	broker    domain.Broker
	features  *FeatureExtractor
	scorer    *ConfluenceScorer
	watchlist *Watchlist
	engine    *SetupEngine
	gate      *RiskGate
	sizer     *PositionSizer
	executor  *ExecutionCoordinator
	monitor   *LifecycleMonitor
	metrics   MetricsRecorder
	logger    *zap.Logger

	workers chan struct{}

	mu         sync.Mutex
	symbolLock map[string]*sync.Mutex
}

func NewPipeline(
	cfg PipelineConfig,
	broker domain.Broker,
	features *FeatureExtractor,
	scorer *ConfluenceScorer,
	watchlist *Watchlist,
	engine *SetupEngine,
	gate *RiskGate,
	sizer *PositionSizer,
	executor *ExecutionCoordinator,
	monitor *LifecycleMonitor,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		cfg:        cfg,
		broker:     broker,
		features:   features,
		scorer:     scorer,
		watchlist:  watchlist,
		engine:     engine,
		gate:       gate,
		sizer:      sizer,
		executor:   executor,
		monitor:    monitor,
		metrics:    metrics,
		logger:     logger,
		workers:    make(chan struct{}, workers),
		symbolLock: make(map[string]*sync.Mutex),
	}
}

// OnBarClose reacts to a newly closed bar of the trigger timeframe.
func (p *Pipeline) OnBarClose(ctx context.Context, bar domain.Bar) {
	if bar.Timeframe != p.cfg.TriggerTimeframe {
		return
	}

	p.workers <- struct{}{}
	go func() {
		defer func() { <-p.workers }()

		lock := p.lockFor(bar.Symbol)
		lock.Lock()
		defer lock.Unlock()

		switch p.cfg.Mode {
		case ModeSniper:
			p.sniperBar(ctx, bar)
		default:
			p.scanSymbol(ctx, bar)
		}
	}()
}

// OnTick is the intrabar path: lifecycle fast pass always, armed-setup
// trigger checks in sniper mode. It runs through the same worker pool as
// the bar path so one symbol's broker calls never stall the stream
// read loop or other symbols. A tick arriving while the pool is
// saturated is dropped; the next tick supersedes it.
func (p *Pipeline) OnTick(ctx context.Context, tick domain.Tick) {
	select {
	case p.workers <- struct{}{}:
	default:
		return
	}
	go func() {
		defer func() { <-p.workers }()

		lock := p.lockFor(tick.Symbol)
		lock.Lock()
		defer lock.Unlock()

		p.monitor.FastPass(ctx, tick)

		if p.cfg.Mode != ModeSniper {
			return
		}
		if intent := p.engine.OnTick(tick); intent != nil {
			p.submit(ctx, intent.Signal())
		}
	}()
}

func (p *Pipeline) sniperBar(ctx context.Context, bar domain.Bar) {
	bars, err := p.broker.GetBars(ctx, bar.Symbol, p.cfg.TriggerTimeframe, p.cfg.BarHistory)
	if err != nil {
		p.logger.Error("failed to fetch bars", zap.String("symbol", bar.Symbol), zap.Error(err))
		return
	}
	if intent := p.engine.OnBarClose(bar.Symbol, bars); intent != nil {
		p.submit(ctx, intent.Signal())
	}
}

// scanSymbol is one confluence-mode scan cycle for the bar's symbol:
// extract per-timeframe features, score, refresh the watchlist, then
// evaluate the entry trigger against the new closed bar.
func (p *Pipeline) scanSymbol(ctx context.Context, bar domain.Bar) {
	var features []domain.TimeframeFeatures
	for _, tf := range p.cfg.Timeframes {
		bars, err := p.broker.GetBars(ctx, bar.Symbol, tf, p.cfg.BarHistory)
		if err != nil {
			p.logger.Error("failed to fetch bars",
				zap.String("symbol", bar.Symbol), zap.String("timeframe", string(tf)), zap.Error(err))
			return
		}
		features = append(features, p.features.Extract(tf, bars))
	}

	spread := 0.0
	if tick, err := p.broker.GetTick(ctx, bar.Symbol); err == nil {
		spread = tick.Spread()
	}

	analysis := p.scorer.Score(bar.Symbol, features, spread, bar.Time)
	p.watchlist.Update(analysis)

	if sig := p.watchlist.CheckTriggers(bar); sig != nil {
		p.submit(ctx, sig)
	}
}

// submit pushes one signal through gate, sizer, executor and into the
// lifecycle monitor. A denied or failed signal is discarded, never
// retried; reservations are released on any failure before a position
// exists.
func (p *Pipeline) submit(ctx context.Context, sig *domain.TradeSignal) {
	p.metrics.SignalEmitted(string(sig.EntryType))

	decision := p.gate.CanOpen(ctx, sig)
	if !decision.Allowed {
		p.logger.Info("signal denied",
			zap.String("symbol", sig.Symbol),
			zap.String("signal", sig.ID),
			zap.String("reason", decision.Reason))
		return
	}

	equity, err := p.broker.AccountEquity(ctx)
	if err != nil {
		p.logger.Error("failed to fetch equity, abandoning signal", zap.Error(err))
		p.gate.Release(sig.Symbol)
		return
	}
	spec, err := p.broker.GetSymbolSpec(ctx, sig.Symbol)
	if err != nil {
		p.logger.Error("failed to fetch symbol spec, abandoning signal", zap.Error(err))
		p.gate.Release(sig.Symbol)
		return
	}

	stopDist := sig.Entry - sig.Stop
	if stopDist < 0 {
		stopDist = -stopDist
	}
	lots, riskPct := p.sizer.Size(SizeInput{
		Equity:         equity,
		WinProbability: p.winProbability(sig),
		RewardRisk:     sig.RewardRisk(),
		StopDistance:   stopDist,
		RiskScale:      decision.RiskScale,
		Spec:           spec,
	})
	if lots == 0 {
		p.logger.Info("signal sized to zero volume",
			zap.String("symbol", sig.Symbol), zap.String("signal", sig.ID))
		p.gate.Release(sig.Symbol)
		return
	}

	pos, err := p.executor.Execute(ctx, &domain.SizedOrder{Signal: sig, Lots: lots, RiskPct: riskPct})
	if err != nil {
		p.logger.Error("execution failed, signal discarded",
			zap.String("symbol", sig.Symbol),
			zap.String("signal", sig.ID),
			zap.Error(err))
		p.gate.Release(sig.Symbol)
		return
	}

	// A resting order is not a position: it keeps its reservation but is
	// only tracked once reconciliation sees the fill.
	if sig.Kind == domain.OrderPending {
		p.monitor.TrackPending(pos.Ticket, sig)
		return
	}
	p.monitor.Track(ctx, pos)
}

func (p *Pipeline) winProbability(sig *domain.TradeSignal) float64 {
	if sig.EntryType != domain.EntryConfluence {
		return p.cfg.SniperWinProbability
	}
	prob := p.cfg.BaseWinProbability + sig.Confidence*p.cfg.WinProbabilitySlope
	if prob > 0.9 {
		prob = 0.9
	}
	return prob
}

func (p *Pipeline) lockFor(symbol string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.symbolLock[symbol]
	if !ok {
		lock = &sync.Mutex{}
		p.symbolLock[symbol] = lock
	}
	return lock
}
