package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, open := s.gate.Snapshot()
	s.writeJSON(w, map[string]any{
		"time":           time.Now().UTC(),
		"open_positions": open,
		"watchlist_size": len(s.watchlist.Entries()),
		"equity":         state.Equity,
		"halted":         state.HaltDaily || state.HaltWeekly || state.HaltDrawdown,
	})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.watchlist.Entries())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.monitor.Tracked())
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	state, open := s.gate.Snapshot()
	s.writeJSON(w, map[string]any{
		"day":            state.Day,
		"week":           state.Week,
		"daily_pnl":      state.DailyPnL,
		"weekly_pnl":     state.WeeklyPnL,
		"equity":         state.Equity,
		"peak_equity":    state.PeakEquity,
		"drawdown":       state.Drawdown(),
		"halt_daily":     state.HaltDaily,
		"halt_weekly":    state.HaltWeekly,
		"halt_drawdown":  state.HaltDrawdown,
		"open_positions": open,
		"cooldowns":      state.CooldownUntil,
	})
}

func (s *Server) handleResetDrawdown(w http.ResponseWriter, r *http.Request) {
	s.gate.ResetDrawdownHalt(r.Context())
	s.logger.Info("drawdown halt reset requested via API")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.journal.ListTradeResults(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	state, ok := s.engine.State(symbol)
	if !ok {
		http.Error(w, "no setup state for symbol", http.StatusNotFound)
		return
	}
	s.writeJSON(w, state)
}
