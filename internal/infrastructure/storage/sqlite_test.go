package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitos/fx_trade_sniper/internal/domain"
	"github.com/vitos/fx_trade_sniper/internal/infrastructure/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRiskStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Absent state loads as nil, not an error.
	loaded, err := store.LoadRiskState(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	st := domain.NewRiskState(10000, time.Now())
	st.DailyPnL = -120.5
	st.HaltDaily = true
	st.CooldownUntil["EURUSD"] = time.Now().Add(2 * time.Hour).UTC()
	st.ProcessedTickets[42] = true
	require.NoError(t, store.SaveRiskState(ctx, st))

	loaded, err = store.LoadRiskState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, st.Day, loaded.Day)
	require.Equal(t, st.DailyPnL, loaded.DailyPnL)
	require.True(t, loaded.HaltDaily)
	require.False(t, loaded.HaltWeekly)
	require.True(t, loaded.ProcessedTickets[42])
	require.WithinDuration(t, st.CooldownUntil["EURUSD"], loaded.CooldownUntil["EURUSD"], time.Second)

	// Saving again overwrites the single row.
	st.HaltDaily = false
	require.NoError(t, store.SaveRiskState(ctx, st))
	loaded, err = store.LoadRiskState(ctx)
	require.NoError(t, err)
	require.False(t, loaded.HaltDaily)
}

func TestJournalAppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendTradeResult(ctx, &domain.TradeResult{
			Ticket:     int64(100 + i),
			Symbol:     "EURUSD",
			Side:       domain.SideLong,
			Lots:       1,
			EntryPrice: 1.1000,
			ExitPrice:  1.1050,
			Profit:     float64(50 * (i + 1)),
			Win:        true,
			Reason:     domain.ExitTarget,
			EntryType:  domain.EntryConfluence,
			OpenedAt:   time.Now().Add(-time.Hour).UTC(),
			ClosedAt:   time.Now().Add(time.Duration(i) * time.Minute).UTC(),
		}))
	}

	results, err := store.ListTradeResults(ctx, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Most recent closure first.
	require.Equal(t, int64(102), results[0].Ticket)
	require.Equal(t, domain.ExitTarget, results[0].Reason)
	require.Equal(t, domain.SideLong, results[0].Side)
}

func TestPositionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pos := &domain.OpenPosition{
		Ticket:     7,
		Symbol:     "GBPJPY",
		Side:       domain.SideShort,
		Lots:       0.5,
		EntryPrice: 190.50,
		Stop:       191.00,
		Target:     189.00,
		OpenedAt:   time.Now().UTC(),
		EntryType:  domain.EntryBreakout,
		ClientID:   "client-7",
	}
	require.NoError(t, store.SavePosition(ctx, pos))

	// Upsert on the same ticket updates the mutable fields.
	pos.Stop = 190.40
	pos.Lots = 0.25
	pos.PartialDone = true
	require.NoError(t, store.SavePosition(ctx, pos))

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, 190.40, positions[0].Stop)
	require.Equal(t, 0.25, positions[0].Lots)
	require.True(t, positions[0].PartialDone)
	require.Equal(t, "client-7", positions[0].ClientID)

	require.NoError(t, store.DeletePosition(ctx, 7))
	positions, err = store.ListPositions(ctx)
	require.NoError(t, err)
	require.Empty(t, positions)
}
