package daycfg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/types"

	_ "modernc.org/sqlite"
)

// ErrImmutable is returned when a started day is saved without override.
var ErrImmutable = errors.New("trading day config is immutable once the day has started")

// Repository stores one TradingDayConfig per calendar date and the day summaries.
type Repository struct {
	db       *sql.DB
	defaults func(date string) types.TradingDayConfig
	now      func() time.Time
}

var _ interfaces.DayConfigRepository = (*Repository)(nil)

func Open(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Repository{db: db, defaults: types.DefaultDayConfig, now: time.Now}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// WithDefaults replaces the template used for lazily created days.
func (r *Repository) WithDefaults(fn func(date string) types.TradingDayConfig) *Repository {
	r.defaults = fn
	return r
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS trading_day_config (
	date TEXT PRIMARY KEY,
	open_time TEXT NOT NULL,
	take_trade_time TEXT NOT NULL,
	last_trade_time TEXT NOT NULL,
	close_position_time TEXT NOT NULL,
	market_close_time TEXT NOT NULL,
	close_day_time TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	note TEXT NOT NULL DEFAULT '',
	started_at TEXT,
	updated_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS day_summary (
	date TEXT PRIMARY KEY,
	pnl REAL NOT NULL,
	leg_count INTEGER NOT NULL,
	closed INTEGER NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const selectDay = `SELECT date, open_time, take_trade_time, last_trade_time, close_position_time,
market_close_time, close_day_time, enabled, note, started_at, updated_at
FROM trading_day_config WHERE date=?`

func (r *Repository) get(ctx context.Context, date string) (types.TradingDayConfig, bool, error) {
	var (
		c         types.TradingDayConfig
		enabled   int
		startedAt sql.NullString
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, selectDay, date).Scan(
		&c.Date, &c.Open, &c.TakeTrade, &c.LastTrade, &c.ClosePosition,
		&c.MarketClose, &c.CloseDay, &enabled, &c.Note, &startedAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.TradingDayConfig{}, false, nil
	}
	if err != nil {
		return types.TradingDayConfig{}, false, fmt.Errorf("get day config %s: %w", date, err)
	}
	c.Enabled = enabled != 0
	if startedAt.Valid && startedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, startedAt.String); err == nil {
			c.StartedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	return c, true, nil
}

// GetOrCreate returns the config for date, inserting defaults on first access.
func (r *Repository) GetOrCreate(ctx context.Context, date string) (types.TradingDayConfig, error) {
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return types.TradingDayConfig{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	c, found, err := r.get(ctx, date)
	if err != nil || found {
		return c, err
	}

	c = r.defaults(date)
	c.Date = date
	c.UpdatedAt = r.now()
	_, err = r.db.ExecContext(ctx, `
INSERT INTO trading_day_config (date, open_time, take_trade_time, last_trade_time, close_position_time,
	market_close_time, close_day_time, enabled, note, started_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,NULL,?)
ON CONFLICT(date) DO NOTHING
`, c.Date, c.Open, c.TakeTrade, c.LastTrade, c.ClosePosition, c.MarketClose, c.CloseDay,
		boolInt(c.Enabled), c.Note, c.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return types.TradingDayConfig{}, fmt.Errorf("create day config %s: %w", date, err)
	}
	// a concurrent creator may have won the insert
	c, _, err = r.get(ctx, date)
	return c, err
}

// Save updates a day's times. A started day is rejected unless override is set.
func (r *Repository) Save(ctx context.Context, c types.TradingDayConfig, override bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	existing, found, err := r.get(ctx, c.Date)
	if err != nil {
		return err
	}
	if found && existing.Started() && !override {
		return ErrImmutable
	}

	var startedAt any
	if found && existing.StartedAt != nil {
		startedAt = existing.StartedAt.Format(time.RFC3339Nano)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO trading_day_config (date, open_time, take_trade_time, last_trade_time, close_position_time,
	market_close_time, close_day_time, enabled, note, started_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(date) DO UPDATE SET
	open_time=excluded.open_time,
	take_trade_time=excluded.take_trade_time,
	last_trade_time=excluded.last_trade_time,
	close_position_time=excluded.close_position_time,
	market_close_time=excluded.market_close_time,
	close_day_time=excluded.close_day_time,
	enabled=excluded.enabled,
	note=excluded.note,
	updated_at=excluded.updated_at
`, c.Date, c.Open, c.TakeTrade, c.LastTrade, c.ClosePosition, c.MarketClose, c.CloseDay,
		boolInt(c.Enabled), c.Note, startedAt, r.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save day config %s: %w", c.Date, err)
	}
	return nil
}

// MarkStarted records the first start of a day; later calls keep the original time.
func (r *Repository) MarkStarted(ctx context.Context, date string, at time.Time) error {
	if _, err := r.GetOrCreate(ctx, date); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE trading_day_config SET started_at=COALESCE(started_at, ?), updated_at=? WHERE date=?`,
		at.Format(time.RFC3339Nano), r.now().Format(time.RFC3339Nano), date)
	if err != nil {
		return fmt.Errorf("mark day started %s: %w", date, err)
	}
	return nil
}

func (r *Repository) SaveSummary(ctx context.Context, s types.DaySummary) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO day_summary (date, pnl, leg_count, closed, note, created_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(date) DO UPDATE SET pnl=excluded.pnl, leg_count=excluded.leg_count,
	closed=excluded.closed, note=excluded.note, created_at=excluded.created_at
`, s.Date, s.PnL, s.LegCount, boolInt(s.Closed), s.Note, s.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save day summary %s: %w", s.Date, err)
	}
	return nil
}

func (r *Repository) Summary(ctx context.Context, date string) (types.DaySummary, bool, error) {
	var (
		s         types.DaySummary
		closed    int
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT date, pnl, leg_count, closed, note, created_at FROM day_summary WHERE date=?`, date,
	).Scan(&s.Date, &s.PnL, &s.LegCount, &closed, &s.Note, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DaySummary{}, false, nil
	}
	if err != nil {
		return types.DaySummary{}, false, fmt.Errorf("get day summary %s: %w", date, err)
	}
	s.Closed = closed != 0
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		s.CreatedAt = t
	}
	return s, true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
