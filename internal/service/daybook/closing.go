package daybook

import (
	"context"
	"fmt"
	"time"

	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
)

// closeMonth moves m from OPEN to CLOSED. The following month is seeded with
// opening = closing = m's closing before m is flagged closed.
func closeMonth(ctx context.Context, tx Tx, m ledger.Month, now time.Time, currency string) (ledger.MonthlyPeriod, error) {
	p, ok, err := tx.GetPeriod(ctx, m)
	if err != nil {
		return ledger.MonthlyPeriod{}, err
	}
	if !ok {
		return ledger.MonthlyPeriod{}, &errs.NotFoundError{Resource: "period", ID: m.String()}
	}
	if p.Closed {
		return ledger.MonthlyPeriod{}, fmt.Errorf("close %s: %w", m, errs.ErrPeriodClosed)
	}
	if _, exists, err := tx.GetPeriod(ctx, m.Next()); err != nil {
		return ledger.MonthlyPeriod{}, err
	} else if exists {
		return ledger.MonthlyPeriod{}, fmt.Errorf("close %s: %w", m, errs.ErrNextPeriodExists)
	}

	zero, err := ledger.Zero(currency)
	if err != nil {
		return ledger.MonthlyPeriod{}, err
	}
	next := ledger.MonthlyPeriod{
		Month:     m.Next(),
		Opening:   p.Closing,
		Closing:   p.Closing,
		Credits:   zero,
		Debits:    zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	closedAt := now
	p.Closed = true
	p.ClosedAt = &closedAt
	p.UpdatedAt = now
	if err := tx.UpsertPeriods(ctx, []ledger.MonthlyPeriod{next, p}); err != nil {
		return ledger.MonthlyPeriod{}, fmt.Errorf("close %s: %w", m, err)
	}
	return p, nil
}
