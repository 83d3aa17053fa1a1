/*
Package sqlite provides a single-node daybook store on SQLite.

Writers are serialized twice: in-process by the store mutex and across
processes by BEGIN IMMEDIATE (_txlock=immediate), which takes the database
write lock before the first read of the cascade. View runs a deferred,
query-only transaction on a separate pool; under WAL it reads one snapshot
for its whole duration, even while another process commits.

Timestamps are stored as fixed-width UTC text so that lexical order equals
chronological order.

	store, err := sqlite.Open(ctx, "./data/daybook.db")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/mattn/go-sqlite3"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/service/daybook"
	"github.com/tinoosan/daybook/internal/storage/sqlutil"
)

// timeLayout has a fixed width so text comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var dialect = sqlutil.Dialect{
	Placeholder:  func(n int) string { return fmt.Sprintf("?%d", n) },
	Like:         "like",
	Time:         func(t time.Time) any { return formatTime(t) },
	ScanTime:     func(t *time.Time) any { return timeText{t} },
	ScanNullTime: func(t **time.Time) any { return nullTimeText{t} },
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

type timeText struct{ dst *time.Time }

func (s timeText) Scan(v any) error {
	switch x := v.(type) {
	case string:
		t, err := time.Parse(timeLayout, x)
		if err != nil {
			return err
		}
		*s.dst = t
	case []byte:
		return s.Scan(string(x))
	case time.Time:
		*s.dst = x.UTC()
	default:
		return fmt.Errorf("sqlite: cannot scan %T into time", v)
	}
	return nil
}

type nullTimeText struct{ dst **time.Time }

func (s nullTimeText) Scan(v any) error {
	if v == nil {
		*s.dst = nil
		return nil
	}
	var t time.Time
	if err := (timeText{&t}).Scan(v); err != nil {
		return err
	}
	*s.dst = &t
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements daybook.Store on SQLite.
type Store struct {
	db *sql.DB
	// rdb serves View. It is db itself for ":memory:".
	rdb *sql.DB
	mu  sync.RWMutex
}

const (
	writeOptions = "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	readOptions  = "?_busy_timeout=5000&_txlock=deferred&_query_only=1"
)

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+writeOptions)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db, rdb: db}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		s.rdb, err = sql.Open("sqlite3", path+readOptions)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open read pool: %w", err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.rdb != s.db {
		if err := s.rdb.Close(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		entry_date TEXT NOT NULL,
		description TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('credit', 'debit')),
		currency TEXT NOT NULL,
		amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
		balance_minor INTEGER NOT NULL DEFAULT 0,
		account_head TEXT NOT NULL,
		voucher_type TEXT NOT NULL DEFAULT '',
		voucher_no TEXT NOT NULL DEFAULT '',
		party TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_order ON entries(entry_date, created_at, id);

	CREATE TABLE IF NOT EXISTS monthly_periods (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		currency TEXT NOT NULL,
		opening_minor INTEGER NOT NULL,
		closing_minor INTEGER NOT NULL,
		credits_minor INTEGER NOT NULL,
		debits_minor INTEGER NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		closed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (year, month)
	);

	CREATE TABLE IF NOT EXISTS opening_balance (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		currency TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		anchor_date TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// WithTx executes fn within an immediate transaction.
func (s *Store) WithTx(ctx context.Context, fn func(daybook.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&writer{reader{q: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn in a read transaction, so every query inside it sees the same snapshot.
func (s *Store) View(ctx context.Context, fn func(daybook.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.rdb.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(reader{q: tx})
}

type reader struct{ q querier }

type rowScanner interface{ Scan(dest ...any) error }

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var rec sqlutil.EntryRecord
	if err := row.Scan(dialect.EntryDest(&rec)...); err != nil {
		return ledger.Entry{}, err
	}
	return rec.Entry()
}

func (r reader) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r reader) optionalEntry(ctx context.Context, query string, args ...any) (ledger.Entry, bool, error) {
	e, err := scanEntry(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

func (r reader) GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	e, ok, err := r.optionalEntry(ctx, `SELECT `+sqlutil.EntryColumns+` FROM entries WHERE id = ?1`, id.String())
	if err != nil {
		return ledger.Entry{}, err
	}
	if !ok {
		return ledger.Entry{}, &errs.NotFoundError{Resource: "entry", ID: id.String()}
	}
	return e, nil
}

func (r reader) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, int, error) {
	where, args := dialect.EntryWhere(f, nil)
	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.PageSize, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM entries %s ORDER BY %s LIMIT ?%d OFFSET ?%d`,
		sqlutil.EntryColumns, where, sqlutil.EntryOrder, len(args)-1, len(args))
	items, err := r.queryEntries(ctx, query, args...)
	return items, total, err
}

func (r reader) ScanEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	where, args := dialect.EntryWhere(f, nil)
	return r.queryEntries(ctx, `SELECT `+sqlutil.EntryColumns+` FROM entries `+where+` ORDER BY `+sqlutil.EntryOrder, args...)
}

func (r reader) EntriesFrom(ctx context.Context, from time.Time) ([]ledger.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+sqlutil.EntryColumns+` FROM entries WHERE entry_date >= ?1 ORDER BY `+sqlutil.EntryOrder, formatTime(from))
}

func (r reader) LastEntryBefore(ctx context.Context, t time.Time) (ledger.Entry, bool, error) {
	return r.optionalEntry(ctx, `SELECT `+sqlutil.EntryColumns+` FROM entries WHERE entry_date < ?1 ORDER BY `+sqlutil.EntryOrderDesc+` LIMIT 1`, formatTime(t))
}

func (r reader) LastEntry(ctx context.Context) (ledger.Entry, bool, error) {
	return r.optionalEntry(ctx, `SELECT `+sqlutil.EntryColumns+` FROM entries ORDER BY `+sqlutil.EntryOrderDesc+` LIMIT 1`)
}

func (r reader) EntryByIdempotencyKey(ctx context.Context, key string) (ledger.Entry, bool, error) {
	return r.optionalEntry(ctx, `SELECT `+sqlutil.EntryColumns+` FROM entries
		WHERE id = (SELECT entry_id FROM idempotency_keys WHERE key = ?1)`, key)
}

func scanPeriod(row rowScanner) (ledger.MonthlyPeriod, error) {
	var rec sqlutil.PeriodRecord
	if err := row.Scan(dialect.PeriodDest(&rec)...); err != nil {
		return ledger.MonthlyPeriod{}, err
	}
	return rec.Period()
}

func (r reader) optionalPeriod(ctx context.Context, query string, args ...any) (ledger.MonthlyPeriod, bool, error) {
	p, err := scanPeriod(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.MonthlyPeriod{}, false, nil
	}
	if err != nil {
		return ledger.MonthlyPeriod{}, false, err
	}
	return p, true, nil
}

func (r reader) GetPeriod(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, bool, error) {
	return r.optionalPeriod(ctx, `SELECT `+sqlutil.PeriodColumns+` FROM monthly_periods WHERE year = ?1 AND month = ?2`, m.Year, int(m.Month))
}

func (r reader) PeriodsFrom(ctx context.Context, m ledger.Month) ([]ledger.MonthlyPeriod, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+sqlutil.PeriodColumns+` FROM monthly_periods
		WHERE year * 100 + month >= ?1 ORDER BY year, month`, m.Key())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.MonthlyPeriod, 0)
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r reader) LastPeriodBefore(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, bool, error) {
	return r.optionalPeriod(ctx, `SELECT `+sqlutil.PeriodColumns+` FROM monthly_periods
		WHERE year * 100 + month < ?1 ORDER BY year DESC, month DESC LIMIT 1`, m.Key())
}

func (r reader) LastPeriod(ctx context.Context) (ledger.MonthlyPeriod, bool, error) {
	return r.optionalPeriod(ctx, `SELECT `+sqlutil.PeriodColumns+` FROM monthly_periods ORDER BY year DESC, month DESC LIMIT 1`)
}

func (r reader) LatestClosedPeriod(ctx context.Context) (ledger.MonthlyPeriod, bool, error) {
	return r.optionalPeriod(ctx, `SELECT `+sqlutil.PeriodColumns+` FROM monthly_periods
		WHERE closed = 1 ORDER BY year DESC, month DESC LIMIT 1`)
}

func (r reader) GetOpeningBalance(ctx context.Context) (ledger.OpeningBalance, bool, error) {
	var (
		curr  string
		minor int64
		ob    ledger.OpeningBalance
	)
	err := r.q.QueryRowContext(ctx, `SELECT currency, amount_minor, anchor_date, notes, created_at FROM opening_balance WHERE id = 1`).
		Scan(&curr, &minor, timeText{&ob.Date}, &ob.Notes, timeText{&ob.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.OpeningBalance{}, false, nil
	}
	if err != nil {
		return ledger.OpeningBalance{}, false, err
	}
	amt, err := money.NewAmountFromMinorUnits(curr, minor)
	if err != nil {
		return ledger.OpeningBalance{}, false, err
	}
	ob.Amount = amt
	return ob, true, nil
}

type writer struct{ reader }

func (w *writer) InsertEntry(ctx context.Context, e ledger.Entry) error {
	args, err := dialect.EntryArgs(e)
	if err != nil {
		return err
	}
	args[0] = e.ID.String()
	_, err = w.q.ExecContext(ctx, `INSERT INTO entries (`+sqlutil.EntryColumns+`) VALUES (`+dialect.Placeholders(0, len(args))+`)`, args...)
	if isConstraintViolation(err) {
		return errs.ErrConflict
	}
	return err
}

func (w *writer) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	md, err := e.Metadata.MarshalStableJSON()
	if err != nil {
		return err
	}
	res, err := w.q.ExecContext(ctx, `UPDATE entries SET entry_date = ?2, description = ?3, kind = ?4, currency = ?5,
		amount_minor = ?6, account_head = ?7, voucher_type = ?8, voucher_no = ?9, party = ?10, category = ?11,
		metadata = ?12, updated_at = ?13 WHERE id = ?1`,
		e.ID.String(), formatTime(e.Date), e.Description, string(e.Kind), e.Amount.Curr().Code(), ledger.MinorUnits(e.Amount),
		e.AccountHead, e.VoucherType, e.VoucherNo, e.Party, e.Category, string(md), formatTime(e.UpdatedAt))
	if err != nil {
		return err
	}
	return expectRow(res, e.ID)
}

func (w *writer) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	res, err := w.q.ExecContext(ctx, `DELETE FROM entries WHERE id = ?1`, id.String())
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &errs.NotFoundError{Resource: "entry", ID: id.String()}
	}
	return nil
}

func (w *writer) UpdateBalances(ctx context.Context, updates []ledger.BalanceUpdate) error {
	for _, u := range updates {
		res, err := w.q.ExecContext(ctx, `UPDATE entries SET balance_minor = ?2 WHERE id = ?1`, u.ID.String(), ledger.MinorUnits(u.Balance))
		if err != nil {
			return err
		}
		if err := expectRow(res, u.ID); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) UpsertPeriods(ctx context.Context, periods []ledger.MonthlyPeriod) error {
	query := `INSERT INTO monthly_periods (` + sqlutil.PeriodColumns + `) VALUES (` + dialect.Placeholders(0, 11) + `)
		ON CONFLICT (year, month) DO UPDATE SET
			currency = excluded.currency, opening_minor = excluded.opening_minor, closing_minor = excluded.closing_minor,
			credits_minor = excluded.credits_minor, debits_minor = excluded.debits_minor,
			closed = excluded.closed, closed_at = excluded.closed_at, updated_at = excluded.updated_at`
	for _, p := range periods {
		if _, err := w.q.ExecContext(ctx, query, dialect.PeriodArgs(p)...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) InsertOpeningBalance(ctx context.Context, ob ledger.OpeningBalance) error {
	res, err := w.q.ExecContext(ctx, `INSERT INTO opening_balance (id, currency, amount_minor, anchor_date, notes, created_at)
		VALUES (1, ?1, ?2, ?3, ?4, ?5) ON CONFLICT (id) DO NOTHING`,
		ob.Amount.Curr().Code(), ledger.MinorUnits(ob.Amount), formatTime(ob.Date), ob.Notes, formatTime(ob.CreatedAt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrConflict
	}
	return nil
}

func (w *writer) SaveIdempotencyKey(ctx context.Context, key string, entryID uuid.UUID) error {
	_, err := w.q.ExecContext(ctx, `INSERT INTO idempotency_keys (key, entry_id, created_at) VALUES (?1, ?2, ?3)`,
		key, entryID.String(), formatTime(time.Now()))
	if isConstraintViolation(err) {
		return errs.ErrConflict
	}
	return err
}

func isConstraintViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}
