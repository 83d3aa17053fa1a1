package daybook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/daybook/internal/ledger"
)

// Reader defines the reads the service and the engine need. Every entry scan is
// ordered by (date ASC, created ASC, id ASC).
type Reader interface {
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
	// ListEntries returns one page of matches and the total match count. f is normalized.
	ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, int, error)
	// ScanEntries returns every match, ignoring paging.
	ScanEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error)
	// EntriesFrom returns entries dated at or after from.
	EntriesFrom(ctx context.Context, from time.Time) ([]ledger.Entry, error)
	// LastEntryBefore returns the latest entry dated strictly before t.
	LastEntryBefore(ctx context.Context, t time.Time) (ledger.Entry, bool, error)
	LastEntry(ctx context.Context) (ledger.Entry, bool, error)
	EntryByIdempotencyKey(ctx context.Context, key string) (ledger.Entry, bool, error)

	GetPeriod(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, bool, error)
	// PeriodsFrom returns period rows for m and later months in month order.
	PeriodsFrom(ctx context.Context, m ledger.Month) ([]ledger.MonthlyPeriod, error)
	LastPeriodBefore(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, bool, error)
	LastPeriod(ctx context.Context) (ledger.MonthlyPeriod, bool, error)
	LatestClosedPeriod(ctx context.Context) (ledger.MonthlyPeriod, bool, error)

	GetOpeningBalance(ctx context.Context) (ledger.OpeningBalance, bool, error)
}

// Tx is a read-write unit of work. Nothing written through it is visible to
// other readers until the enclosing WithTx returns nil.
type Tx interface {
	Reader
	InsertEntry(ctx context.Context, e ledger.Entry) error
	// UpdateEntry rewrites every field except Balance and CreatedAt.
	UpdateEntry(ctx context.Context, e ledger.Entry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	UpdateBalances(ctx context.Context, updates []ledger.BalanceUpdate) error
	UpsertPeriods(ctx context.Context, periods []ledger.MonthlyPeriod) error
	// InsertOpeningBalance fails with errs.ErrConflict when the anchor already exists.
	InsertOpeningBalance(ctx context.Context, ob ledger.OpeningBalance) error
	SaveIdempotencyKey(ctx context.Context, key string, entryID uuid.UUID) error
}

// Store is the LedgerStore. WithTx serializes writers across processes sharing the
// same backing database; View reads from a consistent snapshot.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Reader) error) error
}
