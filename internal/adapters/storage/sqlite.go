package storage

// sqlite.go: the ledger store on database/sql.
//
// The same SQL runs on SQLite (modernc, pure Go) and PostgreSQL (pgx stdlib):
//   - queries are written with `?` and rebound to `$n` for postgres;
//   - the portfolio row is the lock: every mutating transaction reads it first
//     (FOR UPDATE on postgres, single writer connection on sqlite), computes
//     the new aggregates in decimal and writes them back;
//   - state transitions are conditional updates (`executed = 0`,
//     `status = 'open'`) so a lost race is a no-op, never a double write;
//   - timestamps are fixed-width UTC text so they sort lexicographically.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS portfolios (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    strategy_type     TEXT NOT NULL,
    strategy_config   TEXT NOT NULL DEFAULT '{}',
    status            TEXT NOT NULL DEFAULT 'active',
    initial_balance   REAL NOT NULL,
    current_balance   REAL NOT NULL CHECK (current_balance >= 0),
    total_invested    REAL NOT NULL DEFAULT 0,
    realized_pnl      REAL NOT NULL DEFAULT 0,
    total_profit_loss REAL NOT NULL DEFAULT 0,
    trade_count       INTEGER NOT NULL DEFAULT 0,
    winning_trades    INTEGER NOT NULL DEFAULT 0,
    losing_trades     INTEGER NOT NULL DEFAULT 0,
    avg_trade_pnl     REAL NOT NULL DEFAULT 0,
    created_at        TEXT NOT NULL,
    last_updated      TEXT NOT NULL,
    last_trade_at     TEXT,
    last_price_update TEXT
);

CREATE TABLE IF NOT EXISTS signals (
    id               TEXT PRIMARY KEY,
    portfolio_id     TEXT NOT NULL REFERENCES portfolios(id),
    created_at       TEXT NOT NULL,
    market_id        TEXT NOT NULL,
    market_question  TEXT NOT NULL DEFAULT '',
    side             TEXT NOT NULL,
    target_price     REAL NOT NULL,
    amount           REAL NOT NULL,
    confidence       REAL NOT NULL DEFAULT 0,
    reason           TEXT NOT NULL DEFAULT '',
    yes_price        REAL NOT NULL DEFAULT 0,
    no_price         REAL NOT NULL DEFAULT 0,
    market_liquidity REAL NOT NULL DEFAULT 0,
    market_volume    REAL NOT NULL DEFAULT 0,
    event_id         TEXT NOT NULL DEFAULT '',
    event_title      TEXT NOT NULL DEFAULT '',
    event_end_date   TEXT,
    expires_at       TEXT,
    executed         INTEGER NOT NULL DEFAULT 0,
    executed_at      TEXT,
    trade_id         TEXT
);

CREATE TABLE IF NOT EXISTS positions (
    id              TEXT PRIMARY KEY,
    portfolio_id    TEXT NOT NULL REFERENCES portfolios(id),
    market_id       TEXT NOT NULL,
    market_question TEXT NOT NULL DEFAULT '',
    side            TEXT NOT NULL,
    amount          REAL NOT NULL,
    entry_price     REAL NOT NULL,
    entry_timestamp TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'open',
    current_pnl     REAL NOT NULL DEFAULT 0,
    realized_pnl    REAL,
    exit_price      REAL,
    exit_timestamp  TEXT
);

CREATE TABLE IF NOT EXISTS trades (
    id              TEXT PRIMARY KEY,
    portfolio_id    TEXT NOT NULL REFERENCES portfolios(id),
    signal_id       TEXT NOT NULL DEFAULT '',
    timestamp       TEXT NOT NULL,
    market_id       TEXT NOT NULL,
    market_question TEXT NOT NULL DEFAULT '',
    side            TEXT NOT NULL,
    amount          REAL NOT NULL,
    entry_price     REAL NOT NULL,
    confidence      REAL NOT NULL DEFAULT 0,
    reason          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'open',
    event_id        TEXT NOT NULL DEFAULT '',
    event_title     TEXT NOT NULL DEFAULT '',
    event_end_date  TEXT,
    realized_pnl    REAL
);

CREATE TABLE IF NOT EXISTS portfolio_history (
    id                TEXT PRIMARY KEY,
    portfolio_id      TEXT NOT NULL REFERENCES portfolios(id),
    snapshot_date     TEXT NOT NULL,
    timestamp         TEXT NOT NULL,
    balance           REAL NOT NULL,
    total_invested    REAL NOT NULL,
    total_profit_loss REAL NOT NULL,
    total_value       REAL NOT NULL,
    open_positions    INTEGER NOT NULL DEFAULT 0,
    trade_count       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_portfolios_status   ON portfolios(status);
CREATE INDEX IF NOT EXISTS idx_signals_pending     ON signals(portfolio_id, executed, created_at);
CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON positions(portfolio_id, status);
CREATE INDEX IF NOT EXISTS idx_positions_market    ON positions(market_id);
CREATE INDEX IF NOT EXISTS idx_trades_portfolio    ON trades(portfolio_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_history_portfolio   ON portfolio_history(portfolio_id, timestamp)
`

// timeLayout is fixed width so stored timestamps order as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type dialect struct {
	name      string
	dollar    bool   // $1, $2… placeholders
	forUpdate string // row lock suffix for the portfolio read
	realType  string
}

var (
	sqliteDialect   = dialect{name: "sqlite", realType: "REAL"}
	postgresDialect = dialect{name: "postgres", dollar: true, forUpdate: " FOR UPDATE", realType: "DOUBLE PRECISION"}
)

// rebind rewrites `?` placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d dialect) schema() []string {
	ddl := strings.ReplaceAll(schema, " REAL", " "+d.realType)
	var stmts []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// SQLStorage implements ports.Ledger on SQLite or PostgreSQL.
type SQLStorage struct {
	db *sql.DB
	d  dialect
}

// NewSQLiteStorage opens (or creates) the SQLite database at path.
// ":memory:" gives a private in-memory ledger, handy for tests.
func NewSQLiteStorage(path string) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps :memory: on one connection
	db.SetMaxIdleConns(1)

	s := &SQLStorage{db: db, d: sqliteDialect}
	if err := s.applySchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: %w", err)
	}
	return s, nil
}

// Open picks the backend by driver name: "sqlite" (default) or "postgres".
func Open(driver, dsn string) (*SQLStorage, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStorage(dsn)
	case "postgres", "postgresql", "pgx":
		return NewPostgresStorage(dsn)
	default:
		return nil, fmt.Errorf("storage.Open: unknown driver %q", driver)
	}
}

func (s *SQLStorage) applySchema(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Driver names the backend, for logs.
func (s *SQLStorage) Driver() string { return s.d.name }

// Ping checks the database is reachable.
func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *SQLStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStorage) exec(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by hand or by older builds
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func limitClause(limit int) (string, []any) {
	if limit <= 0 {
		return "", nil
	}
	return " LIMIT ?", []any{limit}
}

// notFound maps sql.ErrNoRows onto a domain sentinel.
func notFound(err, sentinel error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
