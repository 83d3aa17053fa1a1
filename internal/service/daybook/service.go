// Package daybook is the ledger core: entry mutations with cascading balance
// recalculation, monthly period aggregation, month closing and the opening balance.
package daybook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
)

// DefaultCurrency is used when no ledger currency is configured.
const DefaultCurrency = "INR"

// Service exposes the daybook operations consumed by the HTTP layer and the rollover job.
type Service interface {
	AddEntry(ctx context.Context, e ledger.Entry, idempotencyKey string) (ledger.Entry, bool, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, patch ledger.EntryPatch) (ledger.Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
	ListEntries(ctx context.Context, f ledger.EntryFilter) (ledger.EntryPage, error)
	ExportEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error)

	MonthlyReport(ctx context.Context, m ledger.Month) (ledger.MonthlyReport, error)
	ListPeriods(ctx context.Context) ([]ledger.MonthlyPeriod, error)
	CloseMonth(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, error)

	SetOpeningBalance(ctx context.Context, amount money.Amount, date time.Time, notes string) (ledger.OpeningBalance, error)
	OpeningBalance(ctx context.Context) (ledger.OpeningBalance, error)

	Recalculate(ctx context.Context, from time.Time) (RecalcResult, error)
	Currency() string
}

// RecalcResult summarises one cascade.
type RecalcResult struct {
	From      time.Time
	Tail      money.Amount
	Rewritten int
	Months    []ledger.MonthlyPeriod
}

type Option func(*service)

func WithLogger(l *slog.Logger) Option { return func(s *service) { s.log = l } }

func WithPublisher(p Publisher) Option { return func(s *service) { s.pub = p } }

func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func WithCurrency(code string) Option {
	return func(s *service) { s.currency = strings.ToUpper(strings.TrimSpace(code)) }
}

type service struct {
	store    Store
	log      *slog.Logger
	pub      Publisher
	now      func() time.Time
	currency string

	// mu serializes mutations within this process; stores serialize across processes.
	mu sync.Mutex
}

func New(store Store, opts ...Option) Service {
	s := &service{
		store:    store,
		log:      slog.Default(),
		pub:      nopPublisher{},
		now:      time.Now,
		currency: DefaultCurrency,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) Currency() string { return s.currency }

func (s *service) clock() time.Time { return normalizeDate(s.now()) }

func (s *service) engine() Recalculator { return Recalculator{Currency: s.currency} }

func (s *service) aggregator() Aggregator { return Aggregator{Currency: s.currency, Now: s.clock} }

// cascade replays balances and rebuilds periods from from; both run inside tx.
func (s *service) cascade(ctx context.Context, tx Tx, from time.Time) (RecalcResult, error) {
	tail, n, err := s.engine().Recalculate(ctx, tx, from)
	if err != nil {
		return RecalcResult{}, err
	}
	months, err := s.aggregator().RebuildFrom(ctx, tx, from)
	if err != nil {
		return RecalcResult{}, err
	}
	if len(months) > 0 {
		if last := months[len(months)-1]; !ledger.SameAmount(last.Closing, tail) {
			s.log.Warn("closing balance differs from running balance",
				"month", last.Month.String(), "closing", ledger.FormatAmount(last.Closing), "tail", ledger.FormatAmount(tail))
		}
	}
	s.log.Debug("ledger recalculated", "from", from, "rewritten", n, "months", len(months), "tail", ledger.FormatAmount(tail))
	return RecalcResult{From: from, Tail: tail, Rewritten: n, Months: months}, nil
}

// mutate runs fn in one serialized transaction.
func (s *service) mutate(ctx context.Context, op string, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.WithTx(ctx, fn)
	observeMutation(op, err)
	return err
}

func (s *service) publish(ctx context.Context, evt Event) {
	evt.OccurredAt = s.clock()
	if err := s.pub.Publish(ctx, evt); err != nil {
		s.log.Warn("publish event failed", "type", string(evt.Type), "err", err)
	}
}

func (s *service) AddEntry(ctx context.Context, in ledger.Entry, idempotencyKey string) (ledger.Entry, bool, error) {
	e, err := s.normalizeEntry(in)
	if err != nil {
		return ledger.Entry{}, false, err
	}
	key := strings.TrimSpace(idempotencyKey)

	var out ledger.Entry
	replayed := false
	err = s.mutate(ctx, "add", func(tx Tx) error {
		if key != "" {
			prev, ok, err := tx.EntryByIdempotencyKey(ctx, key)
			if err != nil {
				return err
			}
			if ok {
				out, replayed = prev, true
				return nil
			}
		}
		if err := checkWritable(ctx, tx, e.Date); err != nil {
			return err
		}
		now := s.clock()
		e.ID = uuid.New()
		e.CreatedAt, e.UpdatedAt = now, now
		zero, err := ledger.Zero(s.currency)
		if err != nil {
			return err
		}
		e.Balance = zero
		if err := tx.InsertEntry(ctx, e); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		if key != "" {
			if err := tx.SaveIdempotencyKey(ctx, key, e.ID); err != nil {
				return fmt.Errorf("save idempotency key: %w", err)
			}
		}
		if _, err := s.cascade(ctx, tx, e.Date); err != nil {
			return err
		}
		out, err = tx.GetEntry(ctx, e.ID)
		return err
	})
	if err != nil {
		return ledger.Entry{}, false, err
	}
	if !replayed {
		id := out.ID
		s.publish(ctx, Event{Type: EventEntryCreated, EntryID: &id, AffectedFrom: out.Date})
	}
	return out, replayed, nil
}

func (s *service) UpdateEntry(ctx context.Context, id uuid.UUID, patch ledger.EntryPatch) (ledger.Entry, error) {
	var out ledger.Entry
	var affected time.Time
	err := s.mutate(ctx, "update", func(tx Tx) error {
		old, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		next, err := s.normalizeEntry(patch.Apply(old))
		if err != nil {
			return err
		}
		if err := checkWritable(ctx, tx, old.Date, next.Date); err != nil {
			return err
		}
		next.UpdatedAt = s.clock()
		if err := tx.UpdateEntry(ctx, next); err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		affected = old.Date
		if next.Date.Before(affected) {
			affected = next.Date
		}
		if _, err := s.cascade(ctx, tx, affected); err != nil {
			return err
		}
		out, err = tx.GetEntry(ctx, id)
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	s.publish(ctx, Event{Type: EventEntryUpdated, EntryID: &id, AffectedFrom: affected})
	return out, nil
}

func (s *service) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	var date time.Time
	err := s.mutate(ctx, "delete", func(tx Tx) error {
		old, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if err := checkWritable(ctx, tx, old.Date); err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, id); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		date = old.Date
		_, err = s.cascade(ctx, tx, old.Date)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, Event{Type: EventEntryDeleted, EntryID: &id, AffectedFrom: date})
	return nil
}

func (s *service) GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	var out ledger.Entry
	err := s.store.View(ctx, func(r Reader) error {
		var err error
		out, err = r.GetEntry(ctx, id)
		return err
	})
	return out, err
}

func (s *service) ListEntries(ctx context.Context, f ledger.EntryFilter) (ledger.EntryPage, error) {
	f = f.Normalize()
	page := ledger.EntryPage{Page: f.Page, PageSize: f.PageSize}
	err := s.store.View(ctx, func(r Reader) error {
		var err error
		page.Items, page.Total, err = r.ListEntries(ctx, f)
		return err
	})
	return page, err
}

func (s *service) ExportEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := s.store.View(ctx, func(r Reader) error {
		var err error
		out, err = r.ScanEntries(ctx, f.Normalize())
		return err
	})
	return out, err
}

func (s *service) MonthlyReport(ctx context.Context, m ledger.Month) (ledger.MonthlyReport, error) {
	var rep ledger.MonthlyReport
	err := s.store.View(ctx, func(r Reader) error {
		p, ok, err := r.GetPeriod(ctx, m)
		if err != nil {
			return err
		}
		if !ok {
			if p, err = s.emptyPeriod(m); err != nil {
				return err
			}
		}
		from, to := m.Start(), m.End()
		entries, err := r.ScanEntries(ctx, ledger.EntryFilter{From: &from, To: &to})
		if err != nil {
			return err
		}
		rep = ledger.MonthlyReport{Period: p, Exists: ok, Entries: entries}
		return nil
	})
	return rep, err
}

func (s *service) emptyPeriod(m ledger.Month) (ledger.MonthlyPeriod, error) {
	zero, err := ledger.Zero(s.currency)
	if err != nil {
		return ledger.MonthlyPeriod{}, err
	}
	return ledger.MonthlyPeriod{Month: m, Opening: zero, Closing: zero, Credits: zero, Debits: zero}, nil
}

func (s *service) ListPeriods(ctx context.Context) ([]ledger.MonthlyPeriod, error) {
	var out []ledger.MonthlyPeriod
	err := s.store.View(ctx, func(r Reader) error {
		var err error
		out, err = r.PeriodsFrom(ctx, ledger.Month{})
		return err
	})
	return out, err
}

func (s *service) CloseMonth(ctx context.Context, m ledger.Month) (ledger.MonthlyPeriod, error) {
	var out ledger.MonthlyPeriod
	err := s.mutate(ctx, "close_month", func(tx Tx) error {
		var err error
		out, err = closeMonth(ctx, tx, m, s.clock(), s.currency)
		return err
	})
	if err != nil {
		return ledger.MonthlyPeriod{}, err
	}
	s.log.Info("month closed", "month", m.String(), "closing", ledger.FormatAmount(out.Closing))
	s.publish(ctx, Event{Type: EventPeriodClosed, Month: m.String(), AffectedFrom: m.Start()})
	return out, nil
}

func (s *service) SetOpeningBalance(ctx context.Context, amount money.Amount, date time.Time, notes string) (ledger.OpeningBalance, error) {
	if date.IsZero() {
		return ledger.OpeningBalance{}, errs.Invalid("date", "required")
	}
	amt, err := s.normalizeAmount("amount", amount)
	if err != nil {
		return ledger.OpeningBalance{}, err
	}
	ob := ledger.OpeningBalance{Amount: amt, Date: normalizeDate(date), Notes: strings.TrimSpace(notes)}

	err = s.mutate(ctx, "set_opening_balance", func(tx Tx) error {
		ob.CreatedAt = s.clock()
		if err := insertOpeningBalance(ctx, tx, ob); err != nil {
			return err
		}
		_, err := s.cascade(ctx, tx, ob.Date)
		return err
	})
	if err != nil {
		return ledger.OpeningBalance{}, err
	}
	s.log.Info("opening balance set", "amount", ledger.FormatAmount(ob.Amount), "date", ob.Date)
	s.publish(ctx, Event{Type: EventOpeningBalanceSet, AffectedFrom: ob.Date})
	return ob, nil
}

func (s *service) OpeningBalance(ctx context.Context) (ledger.OpeningBalance, error) {
	var out ledger.OpeningBalance
	err := s.store.View(ctx, func(r Reader) error {
		ob, ok, err := r.GetOpeningBalance(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return &errs.NotFoundError{Resource: "opening balance"}
		}
		out = ob
		return nil
	})
	return out, err
}

// Recalculate re-runs the cascade from from without any other write. Closed
// months and dates before the opening balance are skipped.
func (s *service) Recalculate(ctx context.Context, from time.Time) (RecalcResult, error) {
	if from.IsZero() {
		return RecalcResult{}, errs.Invalid("from", "required")
	}
	from = normalizeDate(from)
	var res RecalcResult
	err := s.mutate(ctx, "recalculate", func(tx Tx) error {
		if ob, ok, err := tx.GetOpeningBalance(ctx); err != nil {
			return err
		} else if ok && from.Before(ob.Date) {
			from = ob.Date
		}
		if p, ok, err := tx.LatestClosedPeriod(ctx); err != nil {
			return err
		} else if ok && from.Before(p.Month.End()) {
			from = p.Month.End()
		}
		var err error
		res, err = s.cascade(ctx, tx, from)
		return err
	})
	if err != nil {
		return RecalcResult{}, err
	}
	s.publish(ctx, Event{Type: EventRecalculated, AffectedFrom: res.From})
	return res, nil
}
