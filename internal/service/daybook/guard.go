package daybook

import (
	"context"
	"fmt"
	"time"

	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
)

// checkWritable rejects dates that would cascade into a closed month or that
// precede the opening balance. A write anywhere on or before the latest closed
// month would change that month's figures, so the whole prefix is locked.
func checkWritable(ctx context.Context, r Reader, dates ...time.Time) error {
	closed, hasClosed, err := r.LatestClosedPeriod(ctx)
	if err != nil {
		return err
	}
	ob, hasAnchor, err := r.GetOpeningBalance(ctx)
	if err != nil {
		return err
	}
	for _, d := range dates {
		if hasClosed && !ledger.MonthOf(d).After(closed.Month) {
			return fmt.Errorf("%s is within closed books up to %s: %w", d.Format(time.DateOnly), closed.Month, errs.ErrPeriodClosed)
		}
		if hasAnchor && d.Before(ob.Date) {
			return fmt.Errorf("%s is before %s: %w", d.Format(time.DateOnly), ob.Date.Format(time.DateOnly), errs.ErrPredatesOpening)
		}
	}
	return nil
}
