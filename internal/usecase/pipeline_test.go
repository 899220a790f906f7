package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/usecase"
	"go.uber.org/zap"
)

type pipelineFixture struct {
	broker   *MockBroker
	sink     *MockSink
	engine   *usecase.SetupEngine
	monitor  *usecase.LifecycleMonitor
	pipeline *usecase.Pipeline
}

func newPipelineFixture(t *testing.T, mode usecase.Mode, monitorCfg usecase.MonitorConfig, setupCfg usecase.SetupConfig) *pipelineFixture {
	t.Helper()
	broker := NewMockBroker()
	sink := &MockSink{}
	journal := &MockJournal{}
	posRepo := NewMockPosRepo()

	exec := usecase.NewExecutionCoordinator(broker, usecase.NopMetrics{}, zap.NewNop(), usecase.DefaultExecutorConfig())
	monitor := usecase.NewLifecycleMonitor(broker, exec, sink, journal, posRepo, nil, zap.NewNop(), monitorCfg)

	gate, err := usecase.NewRiskGate(context.Background(), usecase.DefaultRiskPolicy(), &MockStateRepo{},
		nil, nil, usecase.NopMetrics{}, zap.NewNop(), 10000)
	if err != nil {
		t.Fatalf("failed to build risk gate: %v", err)
	}

	features := usecase.NewFeatureExtractor()
	scorer := usecase.NewConfluenceScorer(usecase.DefaultConfluenceConfig())
	watchlist := usecase.NewWatchlist(usecase.DefaultWatchlistConfig(), gate, zap.NewNop())
	engine := usecase.NewSetupEngine(setupCfg, zap.NewNop())
	sizer := usecase.NewPositionSizer(usecase.DefaultSizingPolicy())

	cfg := usecase.DefaultPipelineConfig()
	cfg.Mode = mode
	cfg.Symbols = []string{"EURUSD"}
	pipeline := usecase.NewPipeline(cfg, broker, features, scorer, watchlist, engine,
		gate, sizer, exec, monitor, usecase.NopMetrics{}, zap.NewNop())

	return &pipelineFixture{broker: broker, sink: sink, engine: engine, monitor: monitor, pipeline: pipeline}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOnTick_ReturnsWhileBrokerCallInFlight(t *testing.T) {
	monitorCfg := usecase.DefaultMonitorConfig()
	monitorCfg.PartialFraction = 0 // isolate the trailing modify
	fx := newPipelineFixture(t, usecase.ModeConfluence, monitorCfg, usecase.DefaultSetupConfig())
	ctx := context.Background()

	fx.broker.ModifyGate = make(chan struct{})
	fx.monitor.Track(ctx, longPosition())

	// 1R in profit wants a trailing modify, which the broker holds open.
	// The tick handler must hand the work to the pool and return instead
	// of stalling the stream read loop behind the broker call.
	fx.pipeline.OnTick(ctx, domain.Tick{Symbol: "EURUSD", Bid: 1.1050, Ask: 1.1052})

	if fx.broker.ModifyCount() != 0 {
		t.Fatal("broker call finished before the gate opened; the handler did not run async")
	}

	close(fx.broker.ModifyGate)
	waitFor(t, "trailing modify to complete", func() bool { return fx.broker.ModifyCount() == 1 })
}

func TestSniperPendingOrder_RestsUntilFill(t *testing.T) {
	setupCfg := usecase.DefaultSetupConfig()
	setupCfg.Precedence = []domain.SetupFamily{domain.FamilyPullback}
	fx := newPipelineFixture(t, usecase.ModeSniper, usecase.DefaultMonitorConfig(), setupCfg)
	ctx := context.Background()

	// Prime the pullback candidate, then hand the confirming bar to the
	// pipeline: the armed setup emits a pending intent and the resting
	// order is placed.
	fx.engine.OnBarClose("EURUSD", pullbackSeries())
	bars := append(pullbackSeries(), domain.Bar{
		Symbol: "EURUSD", Open: 1.1040, Close: 1.1036, High: 1.1042, Low: 1.1034,
		Time: time.Now(),
	})
	fx.broker.Bars[domain.TimeframeM15] = bars

	fx.pipeline.OnBarClose(ctx, domain.Bar{
		Symbol: "EURUSD", Timeframe: domain.TimeframeM15,
		Open: 1.1040, Close: 1.1036, High: 1.1042, Low: 1.1034, Time: time.Now(),
	})
	waitFor(t, "pending order placement", func() bool { return fx.broker.SendCount() == 1 })
	if req := fx.broker.LastReq(); req.Kind != domain.OrderPending {
		t.Fatalf("order kind = %v, want PENDING", req.Kind)
	}

	// The order rests unfilled: repeated reconciliation must not invent a
	// closure for it.
	fx.broker.Positions = nil
	for i := 0; i < 10; i++ {
		fx.monitor.ReconcilePass(ctx)
		time.Sleep(5 * time.Millisecond)
	}
	if len(fx.sink.Results) != 0 {
		t.Fatalf("resting order produced %d trade results, want 0: %+v", len(fx.sink.Results), fx.sink.Results)
	}

	// The fill arrives; the ticket becomes a tracked position.
	filled := longPosition()
	filled.EntryPrice = 1.10285
	fx.broker.Positions = []*domain.OpenPosition{filled}
	fx.monitor.ReconcilePass(ctx)
	waitFor(t, "fill to be tracked", func() bool {
		tracked := fx.monitor.Tracked()
		return len(tracked) == 1 && tracked[0].Ticket == 1001
	})

	// Closure after the fill is reported exactly once.
	fx.broker.Deals[1001] = []*domain.Deal{
		{Ticket: 1001, Symbol: "EURUSD", Lots: 1.0, Price: 1.1062, Profit: 120, Reason: domain.ExitTarget, Time: time.Now()},
	}
	fx.broker.Positions = nil
	fx.monitor.ReconcilePass(ctx)
	fx.monitor.ReconcilePass(ctx)
	if len(fx.sink.Results) != 1 {
		t.Fatalf("RecordResult delivered %d times, want exactly 1", len(fx.sink.Results))
	}
}
