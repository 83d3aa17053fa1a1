package daybook

import (
	"context"
	"fmt"

	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
)

// insertOpeningBalance creates the set-once anchor. The caller cascades from
// ob.Date afterwards, which seeds the anchor month's period row.
func insertOpeningBalance(ctx context.Context, tx Tx, ob ledger.OpeningBalance) error {
	if _, exists, err := tx.GetOpeningBalance(ctx); err != nil {
		return err
	} else if exists {
		return errs.ErrOpeningBalanceSet
	}
	if _, closed, err := tx.LatestClosedPeriod(ctx); err != nil {
		return err
	} else if closed {
		return fmt.Errorf("opening balance after closing: %w", errs.ErrPeriodClosed)
	}
	if e, ok, err := tx.LastEntryBefore(ctx, ob.Date); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("entry %s dated %s: %w", e.ID, e.Date.Format("2006-01-02"), errs.ErrPredatesOpening)
	}
	if p, ok, err := tx.LastPeriodBefore(ctx, ledger.MonthOf(ob.Date)); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("period %s already recorded: %w", p.Month, errs.ErrPredatesOpening)
	}
	if err := tx.InsertOpeningBalance(ctx, ob); err != nil {
		return fmt.Errorf("insert opening balance: %w", err)
	}
	return nil
}
