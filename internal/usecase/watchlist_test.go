package usecase_test

import (
	"testing"
	"time"

	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/usecase"
	"go.uber.org/zap"
)

type stubBlocker struct {
	blocked map[string]string
}

func (b *stubBlocker) EntryBlocked(symbol string) (bool, string) {
	reason, ok := b.blocked[symbol]
	return ok, reason
}

func newTestWatchlist(blocked map[string]string) *usecase.Watchlist {
	return usecase.NewWatchlist(usecase.DefaultWatchlistConfig(), &stubBlocker{blocked: blocked}, zap.NewNop())
}

func qualifiedAnalysis(symbol string, score float64, now time.Time) *domain.SymbolAnalysis {
	return &domain.SymbolAnalysis{
		Symbol:       symbol,
		Score:        score,
		Bias:         domain.SideLong,
		Reference:    1.1050,
		Invalidation: 1.1000,
		Stop:         1.1000,
		Target:       1.1150,
		Timestamp:    now,
	}
}

func TestWatchlist_QualifyAndTriggerOnce(t *testing.T) {
	w := newTestWatchlist(nil)
	now := time.Now()

	w.Update(qualifiedAnalysis("EURUSD", 72, now))
	if len(w.Entries()) != 1 {
		t.Fatalf("entries = %d, want 1", len(w.Entries()))
	}

	bar := domain.Bar{Symbol: "EURUSD", Close: 1.1055, Time: now.Add(15 * time.Minute)}
	sig := w.CheckTriggers(bar)
	if sig == nil {
		t.Fatal("expected a trade signal on reference cross")
	}
	if sig.Side != domain.SideLong || sig.EntryType != domain.EntryConfluence {
		t.Errorf("signal = %+v, want LONG confluence entry", sig)
	}
	if !floatEquals(sig.Entry, 1.1055) || !floatEquals(sig.Stop, 1.1000) || !floatEquals(sig.Target, 1.1150) {
		t.Errorf("signal levels = entry %f stop %f target %f", sig.Entry, sig.Stop, sig.Target)
	}
	if !floatEquals(sig.Confidence, 72) {
		t.Errorf("Confidence = %f, want 72", sig.Confidence)
	}

	// The entry is consumed: the same bar again yields nothing.
	if again := w.CheckTriggers(bar); again != nil {
		t.Error("second trigger on the same entry must not emit a signal")
	}
}

func TestWatchlist_BelowThresholdEvicted(t *testing.T) {
	w := newTestWatchlist(nil)
	now := time.Now()

	w.Update(qualifiedAnalysis("EURUSD", 72, now))
	w.Update(qualifiedAnalysis("EURUSD", 55, now.Add(15*time.Minute)))
	if len(w.Entries()) != 0 {
		t.Error("entry should be evicted once the score drops below the threshold")
	}
}

func TestWatchlist_BlockedSymbolNeverListed(t *testing.T) {
	w := newTestWatchlist(map[string]string{"EURUSD": "open position"})

	w.Update(qualifiedAnalysis("EURUSD", 90, time.Now()))
	if len(w.Entries()) != 0 {
		t.Error("blocked symbol must not be listed")
	}
}

func TestWatchlist_InvalidationEvictsSilently(t *testing.T) {
	w := newTestWatchlist(nil)
	now := time.Now()
	w.Update(qualifiedAnalysis("EURUSD", 72, now))

	bar := domain.Bar{Symbol: "EURUSD", Close: 1.0995, Time: now.Add(15 * time.Minute)}
	if sig := w.CheckTriggers(bar); sig != nil {
		t.Error("invalidation must not emit a signal")
	}
	if len(w.Entries()) != 0 {
		t.Error("invalidated entry should be removed")
	}
}

func TestWatchlist_TTLExpiry(t *testing.T) {
	w := newTestWatchlist(nil)
	now := time.Now()
	w.Update(qualifiedAnalysis("EURUSD", 72, now))

	bar := domain.Bar{Symbol: "EURUSD", Close: 1.1055, Time: now.Add(5 * time.Hour)}
	if sig := w.CheckTriggers(bar); sig != nil {
		t.Error("expired entry must not trigger")
	}
	if len(w.Entries()) != 0 {
		t.Error("expired entry should be removed")
	}
}

func TestWatchlist_NoTriggerBelowReference(t *testing.T) {
	w := newTestWatchlist(nil)
	now := time.Now()
	w.Update(qualifiedAnalysis("EURUSD", 72, now))

	bar := domain.Bar{Symbol: "EURUSD", Close: 1.1040, Time: now.Add(15 * time.Minute)}
	if sig := w.CheckTriggers(bar); sig != nil {
		t.Error("no signal expected while price sits inside the zone")
	}
	if len(w.Entries()) != 1 {
		t.Error("entry should remain listed while waiting")
	}
}
