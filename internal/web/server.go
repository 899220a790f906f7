package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes the operator surface: JSON status endpoints, the manual
// drawdown-halt reset, and prometheus metrics.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	watchlist *usecase.Watchlist
	gate      *usecase.RiskGate
	monitor   *usecase.LifecycleMonitor
	engine    *usecase.SetupEngine
	journal   domain.JournalRepository
	logger    *zap.Logger
}

func NewServer(
	port int,
	watchlist *usecase.Watchlist,
	gate *usecase.RiskGate,
	monitor *usecase.LifecycleMonitor,
	engine *usecase.SetupEngine,
	journal domain.JournalRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		watchlist: watchlist,
		gate:      gate,
		monitor:   monitor,
		engine:    engine,
		journal:   journal,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Watchlist
	s.router.HandleFunc("GET /api/watchlist", s.handleWatchlist)

	// Positions
	s.router.HandleFunc("GET /api/positions", s.handlePositions)

	// Risk
	s.router.HandleFunc("GET /api/risk", s.handleRisk)
	s.router.HandleFunc("POST /api/risk/reset-drawdown", s.handleResetDrawdown)

	// Trades
	s.router.HandleFunc("GET /api/trades", s.handleTrades)

	// Setups
	s.router.HandleFunc("GET /api/setups/{symbol}", s.handleSetup)

	// Metrics
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
