package daybook

import (
	"context"
	"fmt"
	"time"

	"github.com/govalues/money"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
)

// Recalculator replays running balances forward from a date.
type Recalculator struct {
	Currency string
}

// Recalculate seeds from the last entry strictly before from (else the opening
// balance, else zero), folds every entry dated at or after from and writes back
// the balances that changed. Entries before from are never read for rewrite.
// It returns the tail balance and the number of rows rewritten.
func (r Recalculator) Recalculate(ctx context.Context, tx Tx, from time.Time) (money.Amount, int, error) {
	started := time.Now()
	fail := func(err error) (money.Amount, int, error) {
		recalcTotal.WithLabelValues(stageBalances, "error").Inc()
		return money.Amount{}, 0, &errs.RecalculationError{Stage: stageBalances, From: from, Err: err}
	}

	bal, err := seedBalance(ctx, tx, from, r.Currency)
	if err != nil {
		return fail(err)
	}
	entries, err := tx.EntriesFrom(ctx, from)
	if err != nil {
		return fail(fmt.Errorf("load entries: %w", err))
	}

	var updates []ledger.BalanceUpdate
	for _, e := range entries {
		if bal, err = e.Kind.Apply(bal, e.Amount); err != nil {
			return fail(fmt.Errorf("entry %s: %w", e.ID, err))
		}
		if !ledger.SameAmount(bal, e.Balance) {
			updates = append(updates, ledger.BalanceUpdate{ID: e.ID, Balance: bal})
		}
	}
	if len(updates) > 0 {
		if err := tx.UpdateBalances(ctx, updates); err != nil {
			return fail(fmt.Errorf("write balances: %w", err))
		}
	}

	recalcTotal.WithLabelValues(stageBalances, "ok").Inc()
	recalcRows.Observe(float64(len(updates)))
	recalcDuration.WithLabelValues(stageBalances).Observe(time.Since(started).Seconds())
	return bal, len(updates), nil
}

func seedBalance(ctx context.Context, r Reader, from time.Time, currency string) (money.Amount, error) {
	prev, ok, err := r.LastEntryBefore(ctx, from)
	if err != nil {
		return money.Amount{}, fmt.Errorf("seed entry: %w", err)
	}
	if ok {
		return prev.Balance, nil
	}
	ob, ok, err := r.GetOpeningBalance(ctx)
	if err != nil {
		return money.Amount{}, fmt.Errorf("seed opening balance: %w", err)
	}
	if ok {
		return ob.Amount, nil
	}
	return ledger.Zero(currency)
}
