package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/tinoosan/daybook/db/migrations"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/service/daybook"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

// setup opens a store on a freshly migrated, empty schema.
func setup(t *testing.T) *Store {
	t.Helper()
	dsn := getTestDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx, migrations.Init); err != nil {
		t.Fatalf("apply init sql: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `truncate table idempotency_keys, entries, monthly_periods, opening_balance cascade`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func inr(t *testing.T, minor int64) money.Amount {
	t.Helper()
	a, err := money.NewAmountFromMinorUnits("INR", minor)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	return a
}

func TestStore_EntriesRoundTripInOrder(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	day := func(d int) time.Time { return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC) }
	mk := func(d int, created time.Time) ledger.Entry {
		return ledger.Entry{
			ID: uuid.New(), Date: day(d), Description: "freight", Kind: ledger.KindCredit,
			Amount: inr(t, 1000), Balance: inr(t, 1000), AccountHead: "freight_income",
			Metadata: map[string]string{"trip": "T-1"}, CreatedAt: created, UpdatedAt: created,
		}
	}
	late, early := mk(20, now), mk(5, now.Add(time.Second))

	err := s.WithTx(ctx, func(tx daybook.Tx) error {
		for _, e := range []ledger.Entry{late, early} {
			if err := tx.InsertEntry(ctx, e); err != nil {
				return err
			}
		}
		if err := tx.SaveIdempotencyKey(ctx, "k-1", early.ID); err != nil {
			return err
		}
		return tx.UpdateBalances(ctx, []ledger.BalanceUpdate{{ID: late.ID, Balance: inr(t, 2000)}})
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = s.View(ctx, func(r daybook.Reader) error {
		all, err := r.EntriesFrom(ctx, day(1))
		if err != nil {
			return err
		}
		if len(all) != 2 || all[0].ID != early.ID || all[1].ID != late.ID {
			t.Fatalf("unexpected order: %+v", all)
		}
		if got := ledger.MinorUnits(all[1].Balance); got != 2000 {
			t.Fatalf("balance = %d, want 2000", got)
		}
		if v, _ := all[0].Metadata.Get("trip"); v != "T-1" {
			t.Fatalf("metadata lost: %v", all[0].Metadata)
		}
		byKey, ok, err := r.EntryByIdempotencyKey(ctx, "k-1")
		if err != nil || !ok || byKey.ID != early.ID {
			t.Fatalf("idempotency lookup: %v %v %v", byKey.ID, ok, err)
		}
		prev, ok, err := r.LastEntryBefore(ctx, day(20))
		if err != nil || !ok || prev.ID != early.ID {
			t.Fatalf("last before: %v %v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	err = s.WithTx(ctx, func(tx daybook.Tx) error { return tx.SaveIdempotencyKey(ctx, "k-1", late.ID) })
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate key: got %v, want conflict", err)
	}
	err = s.WithTx(ctx, func(tx daybook.Tx) error { return tx.DeleteEntry(ctx, uuid.New()) })
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("delete missing: got %v, want not found", err)
	}
}

func TestStore_PeriodsAndOpeningBalance(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	period := func(y int, m time.Month, closing int64, closed bool) ledger.MonthlyPeriod {
		p := ledger.MonthlyPeriod{
			Month: ledger.Month{Year: y, Month: m}, Opening: inr(t, 0), Closing: inr(t, closing),
			Credits: inr(t, closing), Debits: inr(t, 0), Closed: closed, CreatedAt: now, UpdatedAt: now,
		}
		if closed {
			p.ClosedAt = &now
		}
		return p
	}

	err := s.WithTx(ctx, func(tx daybook.Tx) error {
		if err := tx.UpsertPeriods(ctx, []ledger.MonthlyPeriod{period(2023, 12, 10, true), period(2024, 2, 30, false)}); err != nil {
			return err
		}
		// second upsert overwrites figures
		if err := tx.UpsertPeriods(ctx, []ledger.MonthlyPeriod{period(2024, 2, 45, false)}); err != nil {
			return err
		}
		return tx.InsertOpeningBalance(ctx, ledger.OpeningBalance{Amount: inr(t, 500), Date: now, Notes: "migrated", CreatedAt: now})
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = s.WithTx(ctx, func(tx daybook.Tx) error {
		return tx.InsertOpeningBalance(ctx, ledger.OpeningBalance{Amount: inr(t, 1), Date: now, CreatedAt: now})
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("second anchor: got %v, want conflict", err)
	}

	err = s.View(ctx, func(r daybook.Reader) error {
		feb, ok, err := r.GetPeriod(ctx, ledger.Month{Year: 2024, Month: 2})
		if err != nil || !ok {
			t.Fatalf("get period: %v %v", ok, err)
		}
		if ledger.MinorUnits(feb.Closing) != 45 {
			t.Fatalf("closing = %s, want 0.45", feb.Closing)
		}
		prev, ok, _ := r.LastPeriodBefore(ctx, feb.Month)
		if !ok || prev.Month != (ledger.Month{Year: 2023, Month: 12}) || prev.ClosedAt == nil {
			t.Fatalf("last before: %+v", prev)
		}
		closed, ok, _ := r.LatestClosedPeriod(ctx)
		if !ok || closed.Month.Year != 2023 {
			t.Fatalf("latest closed: %+v", closed)
		}
		from, err := r.PeriodsFrom(ctx, ledger.Month{Year: 2024, Month: 1})
		if err != nil || len(from) != 1 {
			t.Fatalf("periods from: %d %v", len(from), err)
		}
		ob, ok, err := r.GetOpeningBalance(ctx)
		if err != nil || !ok || ledger.MinorUnits(ob.Amount) != 500 || ob.Notes != "migrated" {
			t.Fatalf("opening balance: %+v %v", ob, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStore_ServiceCascade(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	svc := daybook.New(s)
	jan := func(d int) time.Time { return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC) }
	add := func(d int, kind ledger.Kind, minor int64) ledger.Entry {
		e, _, err := svc.AddEntry(ctx, ledger.Entry{
			Date: jan(d), Description: "trip", Kind: kind, Amount: inr(t, minor), AccountHead: "freight_income", VoucherType: "trip",
		}, "")
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		return e
	}

	if _, err := svc.SetOpeningBalance(ctx, inr(t, 100000), jan(1), ""); err != nil {
		t.Fatalf("opening: %v", err)
	}
	e10 := add(10, ledger.KindDebit, 20000)
	add(5, ledger.KindCredit, 50000)

	got, err := svc.GetEntry(ctx, e10.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ledger.MinorUnits(got.Balance) != 130000 {
		t.Fatalf("balance after backdated insert = %s, want 1300.00", got.Balance)
	}
	rep, err := svc.MonthlyReport(ctx, ledger.Month{Year: 2024, Month: 1})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if ledger.MinorUnits(rep.Period.Opening) != 100000 || ledger.MinorUnits(rep.Period.Closing) != 130000 {
		t.Fatalf("period = %s..%s", rep.Period.Opening, rep.Period.Closing)
	}
}
