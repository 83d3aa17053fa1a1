package daybook

import (
	"context"
	"fmt"
	"time"

	"github.com/govalues/money"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
)

// Aggregator rebuilds monthly period rows chained from the previous closing.
type Aggregator struct {
	Currency string
	Now      func() time.Time
}

type monthTotals struct {
	credits money.Amount
	debits  money.Amount
}

// RebuildFrom walks every month from from's month to the last month that has an
// entry or a period row, empty months included, and upserts the rows whose
// figures changed. It returns the state of every walked month.
func (a Aggregator) RebuildFrom(ctx context.Context, tx Tx, from time.Time) ([]ledger.MonthlyPeriod, error) {
	started := time.Now()
	fail := func(err error) ([]ledger.MonthlyPeriod, error) {
		recalcTotal.WithLabelValues(stagePeriods, "error").Inc()
		return nil, &errs.RecalculationError{Stage: stagePeriods, From: from, Err: err}
	}

	start := ledger.MonthOf(from)
	opening, prevMonth, err := a.openingFor(ctx, tx, start)
	if err != nil {
		return fail(err)
	}
	// Fill any gap after the previous row so the chain stays contiguous.
	if !prevMonth.IsZero() && prevMonth.Next().Before(start) {
		start = prevMonth.Next()
	}

	end := start
	last, ok, err := tx.LastEntry(ctx)
	if err != nil {
		return fail(fmt.Errorf("last entry: %w", err))
	}
	if ok && last.Month().After(end) {
		end = last.Month()
	}
	existing, err := tx.PeriodsFrom(ctx, start)
	if err != nil {
		return fail(fmt.Errorf("load periods: %w", err))
	}
	byMonth := make(map[ledger.Month]ledger.MonthlyPeriod, len(existing))
	for _, p := range existing {
		byMonth[p.Month] = p
		if p.Month.After(end) {
			end = p.Month
		}
	}

	totals, err := a.totalsFrom(ctx, tx, start)
	if err != nil {
		return fail(err)
	}
	zero, err := ledger.Zero(a.Currency)
	if err != nil {
		return fail(err)
	}

	now := a.Now().UTC()
	walked := make([]ledger.MonthlyPeriod, 0, 12)
	var changed []ledger.MonthlyPeriod
	for m := start; !m.After(end); m = m.Next() {
		t, ok := totals[m]
		if !ok {
			t = monthTotals{credits: zero, debits: zero}
		}
		closing, err := opening.Add(t.credits)
		if err == nil {
			closing, err = closing.Sub(t.debits)
		}
		if err != nil {
			return fail(fmt.Errorf("month %s: %w", m, err))
		}
		row := ledger.MonthlyPeriod{
			Month: m, Opening: opening, Closing: closing,
			Credits: t.credits, Debits: t.debits,
			CreatedAt: now, UpdatedAt: now,
		}
		if prev, ok := byMonth[m]; ok {
			row.CreatedAt, row.Closed, row.ClosedAt = prev.CreatedAt, prev.Closed, prev.ClosedAt
			if prev.SameFigures(row) {
				row.UpdatedAt = prev.UpdatedAt
				walked = append(walked, row)
				opening = closing
				continue
			}
			if prev.Closed {
				return nil, fmt.Errorf("rebuild %s: %w", m, errs.ErrPeriodClosed)
			}
		}
		changed = append(changed, row)
		walked = append(walked, row)
		opening = closing
	}

	if len(changed) > 0 {
		if err := tx.UpsertPeriods(ctx, changed); err != nil {
			return fail(fmt.Errorf("upsert periods: %w", err))
		}
	}
	recalcTotal.WithLabelValues(stagePeriods, "ok").Inc()
	recalcDuration.WithLabelValues(stagePeriods).Observe(time.Since(started).Seconds())
	return walked, nil
}

// openingFor returns the opening of m: the closing of the latest row before m,
// else the opening balance amount, else zero. The month of that row is returned
// when one exists.
func (a Aggregator) openingFor(ctx context.Context, r Reader, m ledger.Month) (money.Amount, ledger.Month, error) {
	prev, ok, err := r.LastPeriodBefore(ctx, m)
	if err != nil {
		return money.Amount{}, ledger.Month{}, fmt.Errorf("previous period: %w", err)
	}
	if ok {
		return prev.Closing, prev.Month, nil
	}
	ob, ok, err := r.GetOpeningBalance(ctx)
	if err != nil {
		return money.Amount{}, ledger.Month{}, fmt.Errorf("opening balance: %w", err)
	}
	if ok {
		return ob.Amount, ledger.Month{}, nil
	}
	z, err := ledger.Zero(a.Currency)
	return z, ledger.Month{}, err
}

func (a Aggregator) totalsFrom(ctx context.Context, r Reader, m ledger.Month) (map[ledger.Month]monthTotals, error) {
	entries, err := r.EntriesFrom(ctx, m.Start())
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	zero, err := ledger.Zero(a.Currency)
	if err != nil {
		return nil, err
	}
	out := make(map[ledger.Month]monthTotals)
	for _, e := range entries {
		mt := e.Month()
		t, ok := out[mt]
		if !ok {
			t = monthTotals{credits: zero, debits: zero}
		}
		switch e.Kind {
		case ledger.KindCredit:
			t.credits, err = t.credits.Add(e.Amount)
		case ledger.KindDebit:
			t.debits, err = t.debits.Add(e.Amount)
		default:
			err = ledger.ErrUnknownKind
		}
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		out[mt] = t
	}
	return out, nil
}
