package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/vitos/fx_trade_sniper/internal/domain"
)

// SQLiteStore backs the three persistence ports: risk state, the
// append-only trade journal and the open-position snapshot.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS risk_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			day TEXT NOT NULL,
			week TEXT NOT NULL,
			daily_pnl REAL NOT NULL,
			weekly_pnl REAL NOT NULL,
			equity REAL NOT NULL,
			peak_equity REAL NOT NULL,
			halt_daily BOOLEAN NOT NULL DEFAULT 0,
			halt_weekly BOOLEAN NOT NULL DEFAULT 0,
			halt_drawdown BOOLEAN NOT NULL DEFAULT 0,
			cooldowns TEXT NOT NULL DEFAULT '{}',
			processed_tickets TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trade_journal (
			id TEXT PRIMARY KEY,
			ticket INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			lots REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			profit REAL NOT NULL,
			win BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_symbol ON trade_journal(symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_closed_at ON trade_journal(closed_at);`,
		`CREATE TABLE IF NOT EXISTS positions (
			ticket INTEGER PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			lots REAL NOT NULL,
			entry_price REAL NOT NULL,
			stop REAL NOT NULL,
			target REAL NOT NULL,
			opened_at DATETIME NOT NULL,
			entry_type TEXT NOT NULL,
			client_id TEXT NOT NULL,
			partial_done BOOLEAN NOT NULL DEFAULT 0
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// RiskStateRepository Implementation

func (s *SQLiteStore) LoadRiskState(ctx context.Context) (*domain.RiskState, error) {
	query := `SELECT day, week, daily_pnl, weekly_pnl, equity, peak_equity,
			  halt_daily, halt_weekly, halt_drawdown, cooldowns, processed_tickets
			  FROM risk_state WHERE id = 1`
	row := s.db.QueryRowContext(ctx, query)

	var st domain.RiskState
	var cooldowns, tickets string
	err := row.Scan(&st.Day, &st.Week, &st.DailyPnL, &st.WeeklyPnL, &st.Equity, &st.PeakEquity,
		&st.HaltDaily, &st.HaltWeekly, &st.HaltDrawdown, &cooldowns, &tickets)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cooldowns), &st.CooldownUntil); err != nil {
		return nil, fmt.Errorf("failed to decode cooldowns: %w", err)
	}
	if err := json.Unmarshal([]byte(tickets), &st.ProcessedTickets); err != nil {
		return nil, fmt.Errorf("failed to decode processed tickets: %w", err)
	}
	if st.CooldownUntil == nil {
		st.CooldownUntil = make(map[string]time.Time)
	}
	if st.ProcessedTickets == nil {
		st.ProcessedTickets = make(map[int64]bool)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveRiskState(ctx context.Context, st *domain.RiskState) error {
	cooldowns, err := json.Marshal(st.CooldownUntil)
	if err != nil {
		return fmt.Errorf("failed to encode cooldowns: %w", err)
	}
	tickets, err := json.Marshal(st.ProcessedTickets)
	if err != nil {
		return fmt.Errorf("failed to encode processed tickets: %w", err)
	}

	query := `INSERT INTO risk_state (id, day, week, daily_pnl, weekly_pnl, equity, peak_equity,
			  halt_daily, halt_weekly, halt_drawdown, cooldowns, processed_tickets, updated_at)
			  VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  day=excluded.day,
			  week=excluded.week,
			  daily_pnl=excluded.daily_pnl,
			  weekly_pnl=excluded.weekly_pnl,
			  equity=excluded.equity,
			  peak_equity=excluded.peak_equity,
			  halt_daily=excluded.halt_daily,
			  halt_weekly=excluded.halt_weekly,
			  halt_drawdown=excluded.halt_drawdown,
			  cooldowns=excluded.cooldowns,
			  processed_tickets=excluded.processed_tickets,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		st.Day, st.Week, st.DailyPnL, st.WeeklyPnL, st.Equity, st.PeakEquity,
		st.HaltDaily, st.HaltWeekly, st.HaltDrawdown, string(cooldowns), string(tickets), time.Now())
	return err
}

// JournalRepository Implementation

func (s *SQLiteStore) AppendTradeResult(ctx context.Context, res *domain.TradeResult) error {
	query := `INSERT INTO trade_journal (id, ticket, symbol, side, lots, entry_price, exit_price, profit, win, reason, entry_type, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		ulid.Make().String(), res.Ticket, res.Symbol, string(res.Side), res.Lots,
		res.EntryPrice, res.ExitPrice, res.Profit, res.Win, string(res.Reason), string(res.EntryType),
		res.OpenedAt, res.ClosedAt)
	return err
}

func (s *SQLiteStore) ListTradeResults(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	query := `SELECT ticket, symbol, side, lots, entry_price, exit_price, profit, win, reason, entry_type, opened_at, closed_at
			  FROM trade_journal ORDER BY closed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.TradeResult
	for rows.Next() {
		var r domain.TradeResult
		if err := rows.Scan(&r.Ticket, &r.Symbol, &r.Side, &r.Lots, &r.EntryPrice, &r.ExitPrice,
			&r.Profit, &r.Win, &r.Reason, &r.EntryType, &r.OpenedAt, &r.ClosedAt); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// PositionRepository Implementation

func (s *SQLiteStore) SavePosition(ctx context.Context, pos *domain.OpenPosition) error {
	query := `INSERT INTO positions (ticket, symbol, side, lots, entry_price, stop, target, opened_at, entry_type, client_id, partial_done)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(ticket) DO UPDATE SET
			  lots=excluded.lots,
			  stop=excluded.stop,
			  target=excluded.target,
			  partial_done=excluded.partial_done`
	_, err := s.db.ExecContext(ctx, query,
		pos.Ticket, pos.Symbol, string(pos.Side), pos.Lots, pos.EntryPrice, pos.Stop, pos.Target,
		pos.OpenedAt, string(pos.EntryType), pos.ClientID, pos.PartialDone)
	return err
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, ticket int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM positions WHERE ticket = ?", ticket)
	return err
}

func (s *SQLiteStore) ListPositions(ctx context.Context) ([]*domain.OpenPosition, error) {
	query := `SELECT ticket, symbol, side, lots, entry_price, stop, target, opened_at, entry_type, client_id, partial_done FROM positions`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.OpenPosition
	for rows.Next() {
		var p domain.OpenPosition
		if err := rows.Scan(&p.Ticket, &p.Symbol, &p.Side, &p.Lots, &p.EntryPrice, &p.Stop, &p.Target,
			&p.OpenedAt, &p.EntryType, &p.ClientID, &p.PartialDone); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
