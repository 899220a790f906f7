package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/infrastructure/advisor"
	"github.com/vitos/fx_trade_sniper/internal/infrastructure/broker"
	"github.com/vitos/fx_trade_sniper/internal/infrastructure/logger"
	"github.com/vitos/fx_trade_sniper/internal/infrastructure/metrics"
	"github.com/vitos/fx_trade_sniper/internal/infrastructure/notify"
	"github.com/vitos/fx_trade_sniper/internal/infrastructure/storage"
	"github.com/vitos/fx_trade_sniper/internal/usecase"
	"github.com/vitos/fx_trade_sniper/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode    string   `yaml:"mode"` // confluence | sniper
	Symbols []string `yaml:"symbols"`
	Broker  struct {
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"broker"`

	// Policy sections decode over their defaults: an absent key keeps the
	// default, a present one overrides it.
	Risk       usecase.RiskPolicy       `yaml:"risk"`
	Sizing     usecase.SizingPolicy     `yaml:"sizing"`
	Confluence usecase.ConfluenceConfig `yaml:"confluence"`
	Watchlist  usecase.WatchlistConfig  `yaml:"watchlist"`
	Setup      usecase.SetupConfig      `yaml:"setup"`
	Executor   usecase.ExecutorConfig   `yaml:"executor"`
	Monitor    usecase.MonitorConfig    `yaml:"monitor"`
	Pipeline   usecase.PipelineConfig   `yaml:"pipeline"`

	Advisor struct {
		URL string `yaml:"url"`
	} `yaml:"advisor"`
	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Polling struct {
		ReconcileMs     int `yaml:"reconcile_ms"`
		EquityRefreshMs int `yaml:"equity_refresh_ms"`
	} `yaml:"polling"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		Risk:       usecase.DefaultRiskPolicy(),
		Sizing:     usecase.DefaultSizingPolicy(),
		Confluence: usecase.DefaultConfluenceConfig(),
		Watchlist:  usecase.DefaultWatchlistConfig(),
		Setup:      usecase.DefaultSetupConfig(),
		Executor:   usecase.DefaultExecutorConfig(),
		Monitor:    usecase.DefaultMonitorConfig(),
		Pipeline:   usecase.DefaultPipelineConfig(),
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "sniper.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Broker Bridge
	bridge := broker.NewBridgeAdapter(
		cfg.Broker.APIKey, cfg.Broker.APISecret,
		cfg.Broker.RESTEndpoint, cfg.Broker.WSEndpoint, log)

	// 5. Metrics, Advisor, Notifier
	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	var adv domain.Advisor
	if cfg.Advisor.URL != "" {
		adv = advisor.NewHTTPAdvisor(cfg.Advisor.URL)
	}
	notifier := notify.NewWebhookNotifier(cfg.Notify.WebhookURL, log)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// 6. Risk Gate (needs starting equity from the broker)
	equity, err := bridge.AccountEquity(ctx)
	if err != nil {
		log.Fatal("Failed to fetch account equity", zap.Error(err))
	}
	gate, err := usecase.NewRiskGate(ctx, cfg.Risk, store, adv, notifier, recorder, log, equity)
	if err != nil {
		log.Fatal("Failed to init risk gate", zap.Error(err))
	}
	gate.UpdateEquity(ctx, equity)

	// 7. Signal Path
	features := usecase.NewFeatureExtractor()
	scorer := usecase.NewConfluenceScorer(cfg.Confluence)
	watchlist := usecase.NewWatchlist(cfg.Watchlist, gate, log)
	engine := usecase.NewSetupEngine(cfg.Setup, log)

	// 8. Execution Path
	sizer := usecase.NewPositionSizer(cfg.Sizing)
	executor := usecase.NewExecutionCoordinator(bridge, recorder, log, cfg.Executor)
	monitor := usecase.NewLifecycleMonitor(bridge, executor, gate, store, store, notifier, log, cfg.Monitor)

	pipelineCfg := cfg.Pipeline
	pipelineCfg.Symbols = cfg.Symbols
	if cfg.Mode != "" {
		pipelineCfg.Mode = usecase.Mode(cfg.Mode)
	}
	pipeline := usecase.NewPipeline(pipelineCfg, bridge, features, scorer, watchlist, engine,
		gate, sizer, executor, monitor, recorder, log)

	// 9. Recover state from before the restart: persisted positions first,
	// then broker truth for both exposure and divergence repair.
	if err := monitor.Restore(ctx); err != nil {
		log.Error("Failed to restore tracked positions", zap.Error(err))
	}
	if positions, err := bridge.OpenPositions(ctx); err != nil {
		log.Error("Failed to fetch open positions", zap.Error(err))
	} else {
		gate.SyncExposure(positions)
	}
	monitor.ReconcilePass(ctx)

	// 10. Market Data Stream
	bridge.OnTick(func(tick domain.Tick) {
		pipeline.OnTick(ctx, tick)
	})
	bridge.OnBarClose(func(bar domain.Bar) {
		pipeline.OnBarClose(ctx, bar)
	})

	streamTFs := append([]domain.Timeframe{}, pipelineCfg.Timeframes...)
	if err := bridge.Subscribe(cfg.Symbols, streamTFs); err != nil {
		log.Fatal("Failed to subscribe to market data", zap.Error(err))
	}

	// 11. Reconciliation Loop
	reconcileMs := cfg.Polling.ReconcileMs
	if reconcileMs == 0 {
		reconcileMs = 30000
	}
	go func() {
		ticker := time.NewTicker(time.Duration(reconcileMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				monitor.ReconcilePass(ctx)
				monitor.WeekendPass(ctx, time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()

	// 12. Equity Refresh Loop
	equityMs := cfg.Polling.EquityRefreshMs
	if equityMs == 0 {
		equityMs = 60000
	}
	go func() {
		ticker := time.NewTicker(time.Duration(equityMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if eq, err := bridge.AccountEquity(ctx); err == nil {
					gate.UpdateEquity(ctx, eq)
				} else {
					log.Warn("Failed to refresh equity", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// 13. Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, watchlist, gate, monitor, engine, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 14. Wait for Shutdown
	<-ctx.Done()

	log.Info("Shutting down...")
	bridge.Close()
	server.Shutdown(context.Background())
}
