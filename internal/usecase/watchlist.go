package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"go.uber.org/zap"
)

// EntryBlocker answers whether a symbol may be added to the watchlist.
// The risk gate implements it (open position or pending cooldown).
type EntryBlocker interface {
	EntryBlocked(symbol string) (bool, string)
}

type WatchlistConfig struct {
	QualifyScore float64       `yaml:"qualify_score"`
	TTL          time.Duration `yaml:"ttl"`
}

func DefaultWatchlistConfig() WatchlistConfig {
	return WatchlistConfig{
		QualifyScore: 60,
		TTL:          4 * time.Hour,
	}
}

// WatchlistEntry holds one qualified symbol and its trigger parameters.
type WatchlistEntry struct {
	Symbol       string
	Side         domain.Side
	Score        float64
	Reference    float64
	Invalidation float64
	Stop         float64
	Target       float64
	AddedAt      time.Time
	ExpiresAt    time.Time
}

// Watchlist maintains the set of symbols currently qualified for entry.
// Entry removal is the only mutation after insert; a signal is emitted at
// most once per entry.
type Watchlist struct {
	cfg     WatchlistConfig
	blocker EntryBlocker
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[string]*WatchlistEntry
}

func NewWatchlist(cfg WatchlistConfig, blocker EntryBlocker, logger *zap.Logger) *Watchlist {
	return &Watchlist{
		cfg:     cfg,
		blocker: blocker,
		logger:  logger,
		entries: make(map[string]*WatchlistEntry),
	}
}

// Update inserts or refreshes an entry when the analysis clears the
// qualification threshold, and evicts the symbol's entry otherwise.
func (w *Watchlist) Update(a *domain.SymbolAnalysis) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if a.Score < w.cfg.QualifyScore || a.Bias == "" {
		if _, ok := w.entries[a.Symbol]; ok {
			delete(w.entries, a.Symbol)
			w.logger.Debug("watchlist entry no longer qualifies", zap.String("symbol", a.Symbol), zap.Float64("score", a.Score))
		}
		return
	}

	if blocked, reason := w.blocker.EntryBlocked(a.Symbol); blocked {
		delete(w.entries, a.Symbol)
		w.logger.Debug("watchlist entry blocked", zap.String("symbol", a.Symbol), zap.String("reason", reason))
		return
	}

	w.entries[a.Symbol] = &WatchlistEntry{
		Symbol:       a.Symbol,
		Side:         a.Bias,
		Score:        a.Score,
		Reference:    a.Reference,
		Invalidation: a.Invalidation,
		Stop:         a.Stop,
		Target:       a.Target,
		AddedAt:      a.Timestamp,
		ExpiresAt:    a.Timestamp.Add(w.cfg.TTL),
	}
	w.logger.Info("watchlist entry added",
		zap.String("symbol", a.Symbol),
		zap.String("side", string(a.Bias)),
		zap.Float64("score", a.Score),
		zap.Float64("reference", a.Reference))
}

// CheckTriggers evaluates the entry for the bar's symbol against a new
// closed bar. On trigger it emits exactly one TradeSignal and removes the
// entry; on invalidation or TTL expiry it removes the entry silently.
func (w *Watchlist) CheckTriggers(bar domain.Bar) *domain.TradeSignal {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.entries[bar.Symbol]
	if !ok {
		return nil
	}

	if bar.Time.After(entry.ExpiresAt) {
		delete(w.entries, bar.Symbol)
		w.logger.Debug("watchlist entry expired", zap.String("symbol", bar.Symbol))
		return nil
	}

	invalidated := (entry.Side == domain.SideLong && bar.Close <= entry.Invalidation) ||
		(entry.Side == domain.SideShort && bar.Close >= entry.Invalidation)
	if invalidated {
		delete(w.entries, bar.Symbol)
		w.logger.Info("watchlist entry invalidated",
			zap.String("symbol", bar.Symbol),
			zap.Float64("close", bar.Close),
			zap.Float64("invalidation", entry.Invalidation))
		return nil
	}

	triggered := (entry.Side == domain.SideLong && bar.Close > entry.Reference) ||
		(entry.Side == domain.SideShort && bar.Close < entry.Reference)
	if !triggered {
		return nil
	}

	delete(w.entries, bar.Symbol)
	signal := &domain.TradeSignal{
		ID:         uuid.New().String(),
		Symbol:     entry.Symbol,
		Side:       entry.Side,
		Kind:       domain.OrderMarket,
		Entry:      bar.Close,
		Stop:       entry.Stop,
		Target:     entry.Target,
		Confidence: entry.Score,
		EntryType:  domain.EntryConfluence,
		CreatedAt:  bar.Time,
	}
	w.logger.Info("watchlist trigger fired",
		zap.String("symbol", entry.Symbol),
		zap.String("side", string(entry.Side)),
		zap.Float64("entry", signal.Entry))
	return signal
}

// Entries returns a snapshot for the status server.
func (w *Watchlist) Entries() []WatchlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WatchlistEntry, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, *e)
	}
	return out
}

// Evict removes a symbol's entry, used when its state is externally
// invalidated (stale feed, mode switch).
func (w *Watchlist) Evict(symbol string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, symbol)
}
