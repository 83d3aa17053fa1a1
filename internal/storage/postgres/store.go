package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/service/daybook"
	"github.com/tinoosan/daybook/internal/storage/sqlutil"
)

// writerLockKey is the advisory lock every writing transaction takes so that
// cascades from separate processes never interleave.
const writerLockKey int64 = 0x6461796b // "dayk"

var dialect = sqlutil.Postgres

// Store implements daybook.Store on PostgreSQL using pgxpool.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates a new Store with a pgx pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies the schema script. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context, script string) error {
	_, err := s.pool.Exec(ctx, script)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(daybook.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
		return fmt.Errorf("acquire writer lock: %w", err)
	}
	if err := fn(&writer{reader{q: tx}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) View(ctx context.Context, fn func(daybook.Reader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return fn(reader{q: tx})
}

type reader struct{ q pgx.Tx }

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var rec sqlutil.EntryRecord
	if err := row.Scan(dialect.EntryDest(&rec)...); err != nil {
		return ledger.Entry{}, err
	}
	return rec.Entry()
}

func collectEntries(rows pgx.Rows) ([]ledger.Entry, error) {
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

// optionalEntry runs a single-row query, reporting pgx.ErrNoRows as absent.
func (r reader) optionalEntry(ctx context.Context, sql string, args ...any) (ledger.Entry, bool, error) {
	e, err := scanEntry(r.q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

func (r reader) GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	e, ok, err := r.optionalEntry(ctx, `select `+sqlutil.EntryColumns+` from entries where id = $1`, id)
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
	if err := r.q.QueryRow(ctx, `select count(*) from entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.PageSize, f.Offset())
	sql := fmt.Sprintf(`select %s from entries %s order by %s limit $%d offset $%d`,
		sqlutil.EntryColumns, where, sqlutil.EntryOrder, len(args)-1, len(args))
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectEntries(rows)
	return items, total, err
}

func (r reader) ScanEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	where, args := dialect.EntryWhere(f, nil)
	rows, err := r.q.Query(ctx, `select `+sqlutil.EntryColumns+` from entries `+where+` order by `+sqlutil.EntryOrder, args...)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r reader) EntriesFrom(ctx context.Context, from time.Time) ([]ledger.Entry, error) {
	rows, err := r.q.Query(ctx, `select `+sqlutil.EntryColumns+` from entries where entry_date >= $1 order by `+sqlutil.EntryOrder, from)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r reader) LastEntryBefore(ctx context.Context, t time.Time) (ledger.Entry, bool, error) {
	return r.optionalEntry(ctx, `select `+sqlutil.EntryColumns+` from entries where entry_date < $1 order by `+sqlutil.EntryOrderDesc+` limit 1`, t)
}

func (r reader) LastEntry(ctx context.Context) (ledger.Entry, bool, error) {
	return r.optionalEntry(ctx, `select `+sqlutil.EntryColumns+` from entries order by `+sqlutil.EntryOrderDesc+` limit 1`)
}

func (r reader) EntryByIdempotencyKey(ctx context.Context, key string) (ledger.Entry, bool, error) {
	return r.optionalEntry(ctx, `select `+sqlutil.EntryColumns+` from entries
		where id = (select entry_id from idempotency_keys where key = $1)`, key)
}

func scanPeriod(row pgx.Row) (ledger.MonthlyPeriod, error) {
	var rec sqlutil.PeriodRecord
	if err := row.Scan(dialect.PeriodDest(&rec)...); err != nil {
		return ledger.MonthlyPeriod{}, err
	}
	return rec.Period()
}

func (r reader) optionalPeriod(ctx context.Context, sql string, args ...any) (ledger.MonthlyPeriod, bool, error) {
	p, err := scanPeriod(r.q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.MonthlyPeriod{}, false, nil
	}
	if err != nil {
		return ledger.MonthlyPeriod{}, false, err
	}
	return p, true, nil
}

func (r reader) GetPeriod(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, bool, error) {
	return r.optionalPeriod(ctx, `select `+sqlutil.PeriodColumns+` from monthly_periods where year = $1 and month = $2`, m.Year, int(m.Month))
}

func (r reader) PeriodsFrom(ctx context.Context, m ledger.Month) ([]ledger.MonthlyPeriod, error) {
	rows, err := r.q.Query(ctx, `select `+sqlutil.PeriodColumns+` from monthly_periods
		where year * 100 + month >= $1 order by year, month`, m.Key())
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
	return r.optionalPeriod(ctx, `select `+sqlutil.PeriodColumns+` from monthly_periods
		where year * 100 + month < $1 order by year desc, month desc limit 1`, m.Key())
}

func (r reader) LastPeriod(ctx context.Context) (ledger.MonthlyPeriod, bool, error) {
	return r.optionalPeriod(ctx, `select `+sqlutil.PeriodColumns+` from monthly_periods order by year desc, month desc limit 1`)
}

func (r reader) LatestClosedPeriod(ctx context.Context) (ledger.MonthlyPeriod, bool, error) {
	return r.optionalPeriod(ctx, `select `+sqlutil.PeriodColumns+` from monthly_periods
		where closed order by year desc, month desc limit 1`)
}

func (r reader) GetOpeningBalance(ctx context.Context) (ledger.OpeningBalance, bool, error) {
	var (
		curr  string
		minor int64
		ob    ledger.OpeningBalance
	)
	err := r.q.QueryRow(ctx, `select currency, amount_minor, anchor_date, notes, created_at from opening_balance where id = 1`).
		Scan(&curr, &minor, &ob.Date, &ob.Notes, &ob.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	ob.Date = ob.Date.UTC()
	ob.CreatedAt = ob.CreatedAt.UTC()
	return ob, true, nil
}

type writer struct{ reader }

func (w *writer) InsertEntry(ctx context.Context, e ledger.Entry) error {
	args, err := dialect.EntryArgs(e)
	if err != nil {
		return err
	}
	_, err = w.q.Exec(ctx, `insert into entries (`+sqlutil.EntryColumns+`) values (`+dialect.Placeholders(0, len(args))+`)`, args...)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

func (w *writer) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	md, err := e.Metadata.MarshalStableJSON()
	if err != nil {
		return err
	}
	tag, err := w.q.Exec(ctx, `update entries set entry_date = $2, description = $3, kind = $4, currency = $5,
		amount_minor = $6, account_head = $7, voucher_type = $8, voucher_no = $9, party = $10, category = $11,
		metadata = $12, updated_at = $13 where id = $1`,
		e.ID, e.Date, e.Description, string(e.Kind), e.Amount.Curr().Code(), ledger.MinorUnits(e.Amount),
		e.AccountHead, e.VoucherType, e.VoucherNo, e.Party, e.Category, string(md), e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &errs.NotFoundError{Resource: "entry", ID: e.ID.String()}
	}
	return nil
}

func (w *writer) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := w.q.Exec(ctx, `delete from entries where id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &errs.NotFoundError{Resource: "entry", ID: id.String()}
	}
	return nil
}

func (w *writer) UpdateBalances(ctx context.Context, updates []ledger.BalanceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, u := range updates {
		b.Queue(`update entries set balance_minor = $2 where id = $1`, u.ID, ledger.MinorUnits(u.Balance))
	}
	br := w.q.SendBatch(ctx, b)
	defer br.Close()
	for _, u := range updates {
		tag, err := br.Exec()
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &errs.NotFoundError{Resource: "entry", ID: u.ID.String()}
		}
	}
	return br.Close()
}

func (w *writer) UpsertPeriods(ctx context.Context, periods []ledger.MonthlyPeriod) error {
	if len(periods) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, p := range periods {
		b.Queue(`insert into monthly_periods (`+sqlutil.PeriodColumns+`) values (`+dialect.Placeholders(0, 11)+`)
			on conflict (year, month) do update set
				currency = excluded.currency, opening_minor = excluded.opening_minor, closing_minor = excluded.closing_minor,
				credits_minor = excluded.credits_minor, debits_minor = excluded.debits_minor,
				closed = excluded.closed, closed_at = excluded.closed_at, updated_at = excluded.updated_at`,
			dialect.PeriodArgs(p)...)
	}
	br := w.q.SendBatch(ctx, b)
	defer br.Close()
	for range periods {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

func (w *writer) InsertOpeningBalance(ctx context.Context, ob ledger.OpeningBalance) error {
	tag, err := w.q.Exec(ctx, `insert into opening_balance (id, currency, amount_minor, anchor_date, notes, created_at)
		values (1, $1, $2, $3, $4, $5) on conflict (id) do nothing`,
		ob.Amount.Curr().Code(), ledger.MinorUnits(ob.Amount), ob.Date, ob.Notes, ob.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrConflict
	}
	return nil
}

func (w *writer) SaveIdempotencyKey(ctx context.Context, key string, entryID uuid.UUID) error {
	_, err := w.q.Exec(ctx, `insert into idempotency_keys (key, entry_id) values ($1, $2)`, key, entryID)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
