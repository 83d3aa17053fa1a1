// Package memory provides an in-memory LedgerStore used for development and tests.
// Transactions work on a copy of the state that replaces the committed state only
// when the transaction function succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/service/daybook"
)

// entryKey orders entries by (Date, CreatedAt, ID).
type entryKey struct {
	Date      time.Time
	CreatedAt time.Time
	ID        uuid.UUID
}

func keyOf(e ledger.Entry) entryKey { return entryKey{Date: e.Date, CreatedAt: e.CreatedAt, ID: e.ID} }

func (k entryKey) less(o entryKey) bool {
	return ledger.Entry{Date: k.Date, CreatedAt: k.CreatedAt, ID: k.ID}.
		Before(ledger.Entry{Date: o.Date, CreatedAt: o.CreatedAt, ID: o.ID})
}

type state struct {
	entries map[uuid.UUID]ledger.Entry
	// order is the sorted index used for ordered scans and paging.
	order   []entryKey
	periods map[ledger.Month]ledger.MonthlyPeriod
	opening *ledger.OpeningBalance
	idem    map[string]uuid.UUID
}

func newState() *state {
	return &state{
		entries: make(map[uuid.UUID]ledger.Entry),
		periods: make(map[ledger.Month]ledger.MonthlyPeriod),
		idem:    make(map[string]uuid.UUID),
	}
}

func (st *state) clone() *state {
	out := &state{
		entries: make(map[uuid.UUID]ledger.Entry, len(st.entries)),
		order:   append([]entryKey(nil), st.order...),
		periods: make(map[ledger.Month]ledger.MonthlyPeriod, len(st.periods)),
		idem:    make(map[string]uuid.UUID, len(st.idem)),
	}
	for k, v := range st.entries {
		out.entries[k] = v
	}
	for k, v := range st.periods {
		out.periods[k] = v
	}
	for k, v := range st.idem {
		out.idem[k] = v
	}
	if st.opening != nil {
		ob := *st.opening
		out.opening = &ob
	}
	return out
}

// Store is guarded by an RWMutex: writers hold it for the whole transaction,
// readers see only committed state.
type Store struct {
	mu sync.RWMutex
	st *state
}

// New constructs an empty in-memory store.
func New() *Store { return &Store{st: newState()} }

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.st = newState()
	s.mu.Unlock()
}

func (s *Store) Ready(context.Context) error { return nil }

func (s *Store) WithTx(ctx context.Context, fn func(daybook.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{reader{st: work}}); err != nil {
		return err
	}
	// a cancelled caller never commits
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(daybook.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(reader{st: s.st})
}

type reader struct{ st *state }

func (r reader) GetEntry(_ context.Context, id uuid.UUID) (ledger.Entry, error) {
	e, ok := r.st.entries[id]
	if !ok {
		return ledger.Entry{}, &errs.NotFoundError{Resource: "entry", ID: id.String()}
	}
	return e, nil
}

func (r reader) ListEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.Entry, int, error) {
	all := r.scan(f)
	off := f.Offset()
	if off >= len(all) {
		return []ledger.Entry{}, len(all), nil
	}
	end := off + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[off:end], len(all), nil
}

func (r reader) ScanEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	return r.scan(f), nil
}

func (r reader) scan(f ledger.EntryFilter) []ledger.Entry {
	start := 0
	if f.From != nil {
		start = r.lowerBound(*f.From)
	}
	out := make([]ledger.Entry, 0)
	for _, k := range r.st.order[start:] {
		if f.To != nil && !k.Date.Before(*f.To) {
			break
		}
		if e := r.st.entries[k.ID]; f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// lowerBound returns the index of the first key dated at or after t.
func (r reader) lowerBound(t time.Time) int {
	return sort.Search(len(r.st.order), func(i int) bool { return !r.st.order[i].Date.Before(t) })
}

func (r reader) EntriesFrom(_ context.Context, from time.Time) ([]ledger.Entry, error) {
	keys := r.st.order[r.lowerBound(from):]
	out := make([]ledger.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.st.entries[k.ID])
	}
	return out, nil
}

func (r reader) LastEntryBefore(_ context.Context, t time.Time) (ledger.Entry, bool, error) {
	i := r.lowerBound(t)
	if i == 0 {
		return ledger.Entry{}, false, nil
	}
	return r.st.entries[r.st.order[i-1].ID], true, nil
}

func (r reader) LastEntry(_ context.Context) (ledger.Entry, bool, error) {
	n := len(r.st.order)
	if n == 0 {
		return ledger.Entry{}, false, nil
	}
	return r.st.entries[r.st.order[n-1].ID], true, nil
}

func (r reader) EntryByIdempotencyKey(_ context.Context, key string) (ledger.Entry, bool, error) {
	id, ok := r.st.idem[key]
	if !ok {
		return ledger.Entry{}, false, nil
	}
	e, ok := r.st.entries[id]
	return e, ok, nil
}

func (r reader) GetPeriod(_ context.Context, m ledger.Month) (ledger.MonthlyPeriod, bool, error) {
	p, ok := r.st.periods[m]
	return p, ok, nil
}

func (r reader) sortedPeriods() []ledger.MonthlyPeriod {
	out := make([]ledger.MonthlyPeriod, 0, len(r.st.periods))
	for _, p := range r.st.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

func (r reader) PeriodsFrom(_ context.Context, m ledger.Month) ([]ledger.MonthlyPeriod, error) {
	all := r.sortedPeriods()
	i := sort.Search(len(all), func(i int) bool { return !all[i].Month.Before(m) })
	return all[i:], nil
}

func (r reader) LastPeriodBefore(_ context.Context, m ledger.Month) (ledger.MonthlyPeriod, bool, error) {
	var best ledger.MonthlyPeriod
	found := false
	for _, p := range r.st.periods {
		if p.Month.Before(m) && (!found || p.Month.After(best.Month)) {
			best, found = p, true
		}
	}
	return best, found, nil
}

func (r reader) LastPeriod(ctx context.Context) (ledger.MonthlyPeriod, bool, error) {
	return r.lastPeriodWhere(func(ledger.MonthlyPeriod) bool { return true })
}

func (r reader) LatestClosedPeriod(context.Context) (ledger.MonthlyPeriod, bool, error) {
	return r.lastPeriodWhere(func(p ledger.MonthlyPeriod) bool { return p.Closed })
}

func (r reader) lastPeriodWhere(keep func(ledger.MonthlyPeriod) bool) (ledger.MonthlyPeriod, bool, error) {
	var best ledger.MonthlyPeriod
	found := false
	for _, p := range r.st.periods {
		if keep(p) && (!found || p.Month.After(best.Month)) {
			best, found = p, true
		}
	}
	return best, found, nil
}

func (r reader) GetOpeningBalance(context.Context) (ledger.OpeningBalance, bool, error) {
	if r.st.opening == nil {
		return ledger.OpeningBalance{}, false, nil
	}
	return *r.st.opening, true, nil
}

type tx struct{ reader }

func (t *tx) InsertEntry(_ context.Context, e ledger.Entry) error {
	if _, exists := t.st.entries[e.ID]; exists {
		return errs.ErrConflict
	}
	e.Metadata = e.Metadata.Clone()
	t.st.entries[e.ID] = e
	t.insertKey(keyOf(e))
	return nil
}

func (t *tx) UpdateEntry(_ context.Context, e ledger.Entry) error {
	old, ok := t.st.entries[e.ID]
	if !ok {
		return &errs.NotFoundError{Resource: "entry", ID: e.ID.String()}
	}
	e.Balance = old.Balance
	e.CreatedAt = old.CreatedAt
	e.Metadata = e.Metadata.Clone()
	t.removeKey(keyOf(old))
	t.st.entries[e.ID] = e
	t.insertKey(keyOf(e))
	return nil
}

func (t *tx) DeleteEntry(_ context.Context, id uuid.UUID) error {
	old, ok := t.st.entries[id]
	if !ok {
		return &errs.NotFoundError{Resource: "entry", ID: id.String()}
	}
	t.removeKey(keyOf(old))
	delete(t.st.entries, id)
	for k, v := range t.st.idem {
		if v == id {
			delete(t.st.idem, k)
		}
	}
	return nil
}

func (t *tx) UpdateBalances(_ context.Context, updates []ledger.BalanceUpdate) error {
	for _, u := range updates {
		e, ok := t.st.entries[u.ID]
		if !ok {
			return &errs.NotFoundError{Resource: "entry", ID: u.ID.String()}
		}
		e.Balance = u.Balance
		t.st.entries[u.ID] = e
	}
	return nil
}

func (t *tx) UpsertPeriods(_ context.Context, periods []ledger.MonthlyPeriod) error {
	for _, p := range periods {
		t.st.periods[p.Month] = p
	}
	return nil
}

func (t *tx) InsertOpeningBalance(_ context.Context, ob ledger.OpeningBalance) error {
	if t.st.opening != nil {
		return errs.ErrConflict
	}
	t.st.opening = &ob
	return nil
}

func (t *tx) SaveIdempotencyKey(_ context.Context, key string, entryID uuid.UUID) error {
	if _, exists := t.st.idem[key]; exists {
		return errs.ErrConflict
	}
	t.st.idem[key] = entryID
	return nil
}

// insertKey keeps the index sorted.
func (t *tx) insertKey(k entryKey) {
	order := t.st.order
	i := sort.Search(len(order), func(i int) bool { return k.less(order[i]) })
	order = append(order, entryKey{})
	copy(order[i+1:], order[i:])
	order[i] = k
	t.st.order = order
}

func (t *tx) removeKey(k entryKey) {
	order := t.st.order
	i := sort.Search(len(order), func(i int) bool { return !order[i].less(k) })
	if i < len(order) && order[i].ID == k.ID {
		t.st.order = append(order[:i], order[i+1:]...)
	}
}
