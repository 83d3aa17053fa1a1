package daybook_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/service/daybook"
	"github.com/tinoosan/daybook/internal/storage/memory"
)

func rupees(n int64) money.Amount {
	a, err := money.NewAmountFromMinorUnits("INR", n*100)
	if err != nil {
		panic(err)
	}
	return a
}

func jan(d int) time.Time { return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC) }

func month(y int, m time.Month) ledger.Month { return ledger.Month{Year: y, Month: m} }

// tickingClock returns strictly increasing instants so creation order is deterministic.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Millisecond) }
}

func newService(t *testing.T, opts ...daybook.Option) (daybook.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]daybook.Option{daybook.WithLogger(logger), daybook.WithClock(tickingClock())}, opts...)
	return daybook.New(store, opts...), store
}

func newEntry(date time.Time, kind ledger.Kind, amount int64) ledger.Entry {
	return ledger.Entry{
		Date:        date,
		Description: "trip " + date.Format("01-02"),
		Kind:        kind,
		Amount:      rupees(amount),
		AccountHead: "Freight Income",
		VoucherType: "receipt",
	}
}

func add(t *testing.T, svc daybook.Service, date time.Time, kind ledger.Kind, amount int64) ledger.Entry {
	t.Helper()
	e, _, err := svc.AddEntry(context.Background(), newEntry(date, kind, amount), "")
	require.NoError(t, err)
	return e
}

func balanceOf(t *testing.T, svc daybook.Service, id uuid.UUID) int64 {
	t.Helper()
	e, err := svc.GetEntry(context.Background(), id)
	require.NoError(t, err)
	return ledger.MinorUnits(e.Balance) / 100
}

func allEntries(t *testing.T, svc daybook.Service) []ledger.Entry {
	t.Helper()
	out, err := svc.ExportEntries(context.Background(), ledger.EntryFilter{})
	require.NoError(t, err)
	return out
}

// assertRunningBalances checks balance[i] = balance[i-1] ± amount[i] over the whole ledger.
func assertRunningBalances(t *testing.T, svc daybook.Service, opening int64) {
	t.Helper()
	prev := opening * 100
	for _, e := range allEntries(t, svc) {
		want := prev + int64(e.Kind.Sign())*ledger.MinorUnits(e.Amount)
		require.Equal(t, want, ledger.MinorUnits(e.Balance), "entry %s on %s", e.ID, e.Date)
		prev = want
	}
}

// assertPeriodChain checks closing = opening + credits - debits and opening(m) = closing(m-1).
func assertPeriodChain(t *testing.T, svc daybook.Service) {
	t.Helper()
	periods, err := svc.ListPeriods(context.Background())
	require.NoError(t, err)
	for i, p := range periods {
		units := ledger.MinorUnits
		assert.Equal(t, units(p.Opening)+units(p.Credits)-units(p.Debits), units(p.Closing), "month %s", p.Month)
		if i > 0 {
			assert.Equal(t, periods[i-1].Month.Next(), p.Month, "months must be contiguous")
			assert.Equal(t, units(periods[i-1].Closing), units(p.Opening), "month %s", p.Month)
		}
	}
}

func assertPeriod(t *testing.T, p ledger.MonthlyPeriod, opening, closing, credits, debits int64) {
	t.Helper()
	assert.Equal(t, opening*100, ledger.MinorUnits(p.Opening), "opening")
	assert.Equal(t, closing*100, ledger.MinorUnits(p.Closing), "closing")
	assert.Equal(t, credits*100, ledger.MinorUnits(p.Credits), "credits")
	assert.Equal(t, debits*100, ledger.MinorUnits(p.Debits), "debits")
}

func TestBackdatedInsertAndDeleteScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	// GIVEN an opening balance of 1000 on 2024-01-01
	_, err := svc.SetOpeningBalance(ctx, rupees(1000), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "books opened")
	require.NoError(t, err)

	c5 := add(t, svc, jan(5), ledger.KindCredit, 500)
	assert.Equal(t, int64(1500), balanceOf(t, svc, c5.ID))
	d10 := add(t, svc, jan(10), ledger.KindDebit, 200)
	assert.Equal(t, int64(1300), balanceOf(t, svc, d10.ID))

	rep, err := svc.MonthlyReport(ctx, month(2024, time.January))
	require.NoError(t, err)
	require.True(t, rep.Exists)
	assertPeriod(t, rep.Period, 1000, 1300, 500, 200)
	assert.Len(t, rep.Entries, 2)

	// WHEN a credit is backdated to 01-03
	c3 := add(t, svc, jan(3), ledger.KindCredit, 100)

	// THEN every later balance is replayed
	assert.Equal(t, int64(1100), balanceOf(t, svc, c3.ID))
	assert.Equal(t, int64(1600), balanceOf(t, svc, c5.ID))
	assert.Equal(t, int64(1400), balanceOf(t, svc, d10.ID))
	rep, err = svc.MonthlyReport(ctx, month(2024, time.January))
	require.NoError(t, err)
	assertPeriod(t, rep.Period, 1000, 1400, 600, 200)

	// WHEN the 01-05 entry is deleted
	require.NoError(t, svc.DeleteEntry(ctx, c5.ID))

	// THEN
	assert.Equal(t, int64(1100), balanceOf(t, svc, c3.ID))
	assert.Equal(t, int64(900), balanceOf(t, svc, d10.ID))
	rep, err = svc.MonthlyReport(ctx, month(2024, time.January))
	require.NoError(t, err)
	assertPeriod(t, rep.Period, 1000, 900, 100, 200)
	assertRunningBalances(t, svc, 1000)

	_, err = svc.GetEntry(ctx, c5.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestOpeningBalanceSeedsAnchorMonth(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	ob, err := svc.SetOpeningBalance(ctx, rupees(250), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), " carried over ")
	require.NoError(t, err)
	assert.Equal(t, "carried over", ob.Notes)

	rep, err := svc.MonthlyReport(ctx, month(2024, time.March))
	require.NoError(t, err)
	require.True(t, rep.Exists)
	assertPeriod(t, rep.Period, 250, 250, 0, 0)

	_, err = svc.SetOpeningBalance(ctx, rupees(1), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), "")
	assert.ErrorIs(t, err, errs.ErrOpeningBalanceSet)
	assert.ErrorIs(t, err, errs.ErrConflict)

	got, err := svc.OpeningBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), ledger.MinorUnits(got.Amount))
}

func TestOpeningBalanceAfterEntriesRebasesBalances(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	e := add(t, svc, jan(20), ledger.KindCredit, 10)
	assert.Equal(t, int64(10), balanceOf(t, svc, e.ID))

	_, err := svc.SetOpeningBalance(ctx, rupees(90), jan(1), "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balanceOf(t, svc, e.ID))

	// entries before the anchor date are refused from now on
	_, _, err = svc.AddEntry(ctx, newEntry(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), ledger.KindCredit, 1), "")
	assert.ErrorIs(t, err, errs.ErrPredatesOpening)
}

func TestOpeningBalanceRejectedWhenHistoryPredatesIt(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	add(t, svc, jan(5), ledger.KindCredit, 10)

	_, err := svc.SetOpeningBalance(ctx, rupees(90), jan(10), "")
	assert.ErrorIs(t, err, errs.ErrPredatesOpening)

	_, err = svc.OpeningBalance(ctx)
	assert.ErrorIs(t, err, errs.ErrNotFound, "failed set must not persist the anchor")
}

func TestNoAnchorStartsFromZero(t *testing.T) {
	svc, _ := newService(t)
	d := add(t, svc, jan(2), ledger.KindDebit, 40)
	assert.Equal(t, int64(-40), balanceOf(t, svc, d.ID))

	rep, err := svc.MonthlyReport(context.Background(), month(2024, time.January))
	require.NoError(t, err)
	assertPeriod(t, rep.Period, 0, -40, 0, 40)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.SetOpeningBalance(ctx, rupees(1000), jan(1), "")
	require.NoError(t, err)
	for i, amt := range []int64{10, 20, 30, 40} {
		kind := ledger.KindCredit
		if i%2 == 1 {
			kind = ledger.KindDebit
		}
		add(t, svc, jan(2+i*7), kind, amt)
	}
	before := allEntries(t, svc)

	res, err := svc.Recalculate(ctx, jan(1))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rewritten)
	res, err = svc.Recalculate(ctx, jan(1))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rewritten)
	assert.Equal(t, int64(980), ledger.MinorUnits(res.Tail)/100)

	after := allEntries(t, svc)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, ledger.SameAmount(before[i].Balance, after[i].Balance))
	}
}

func TestInsertionOrderIndependence(t *testing.T) {
	type posting struct {
		day    int
		kind   ledger.Kind
		amount int64
	}
	postings := []posting{
		{3, ledger.KindCredit, 100}, {7, ledger.KindDebit, 35}, {12, ledger.KindCredit, 60},
		{18, ledger.KindDebit, 500}, {25, ledger.KindCredit, 5},
	}
	permutations := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}, {3, 4, 0, 2, 1}}

	var reference map[int]int64
	for _, perm := range permutations {
		svc, _ := newService(t)
		_, err := svc.SetOpeningBalance(context.Background(), rupees(1000), jan(1), "")
		require.NoError(t, err)
		for _, i := range perm {
			s := postings[i]
			add(t, svc, jan(s.day), s.kind, s.amount)
		}
		got := map[int]int64{}
		for _, e := range allEntries(t, svc) {
			got[e.Date.Day()] = ledger.MinorUnits(e.Balance)
		}
		assertRunningBalances(t, svc, 1000)
		if reference == nil {
			reference = got
			continue
		}
		assert.Equal(t, reference, got, "permutation %v", perm)
	}
}

func TestDeletionReversibility(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	add(t, svc, jan(2), ledger.KindCredit, 300)
	mid := add(t, svc, jan(9), ledger.KindDebit, 120)
	add(t, svc, jan(16), ledger.KindCredit, 45)

	snapshot := func() []int64 {
		var out []int64
		for _, e := range allEntries(t, svc) {
			out = append(out, ledger.MinorUnits(e.Balance))
		}
		return out
	}
	before := snapshot()

	require.NoError(t, svc.DeleteEntry(ctx, mid.ID))
	assert.NotEqual(t, before, snapshot())

	add(t, svc, jan(9), ledger.KindDebit, 120)
	assert.Equal(t, before, snapshot())
}

func TestAggregatorWalksEmptyMonths(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.SetOpeningBalance(ctx, rupees(100), jan(1), "")
	require.NoError(t, err)

	add(t, svc, jan(15), ledger.KindCredit, 50)
	add(t, svc, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), ledger.KindDebit, 30)

	// Feb and Mar have no entries but carry January's closing forward
	periods, err := svc.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 4)
	assertPeriod(t, periods[1], 150, 150, 0, 0)
	assertPeriod(t, periods[3], 150, 120, 0, 30)

	// a backdated January change must reach April through the empty months
	add(t, svc, jan(20), ledger.KindCredit, 10)
	rep, err := svc.MonthlyReport(ctx, month(2024, time.March))
	require.NoError(t, err)
	assert.Empty(t, rep.Entries)
	assertPeriod(t, rep.Period, 160, 160, 0, 0)
	rep, err = svc.MonthlyReport(ctx, month(2024, time.April))
	require.NoError(t, err)
	assertPeriod(t, rep.Period, 160, 130, 0, 30)

	assertPeriodChain(t, svc)
	assertRunningBalances(t, svc, 100)
}

func TestUpdateMovesEntryAcrossMonths(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.SetOpeningBalance(ctx, rupees(1000), jan(1), "")
	require.NoError(t, err)
	a := add(t, svc, jan(5), ledger.KindCredit, 500)
	b := add(t, svc, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), ledger.KindDebit, 200)

	// move the January credit later than the February debit
	later := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	amount := rupees(400)
	updated, err := svc.UpdateEntry(ctx, a.ID, ledger.EntryPatch{Date: &later, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), ledger.MinorUnits(updated.Balance)/100)
	assert.Equal(t, int64(800), balanceOf(t, svc, b.ID))

	rep, err := svc.MonthlyReport(ctx, month(2024, time.January))
	require.NoError(t, err)
	assertPeriod(t, rep.Period, 1000, 1000, 0, 0)
	rep, err = svc.MonthlyReport(ctx, month(2024, time.February))
	require.NoError(t, err)
	assertPeriod(t, rep.Period, 1000, 1200, 400, 200)

	// and back again, earlier than everything
	early := jan(2)
	debit := ledger.KindDebit
	_, err = svc.UpdateEntry(ctx, a.ID, ledger.EntryPatch{Date: &early, Kind: &debit})
	require.NoError(t, err)
	assertRunningBalances(t, svc, 1000)
	assertPeriodChain(t, svc)

	_, err = svc.UpdateEntry(ctx, uuid.New(), ledger.EntryPatch{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMonthlyReportDefaultsWhenNoPeriod(t *testing.T) {
	svc, _ := newService(t)
	rep, err := svc.MonthlyReport(context.Background(), month(2030, time.May))
	require.NoError(t, err)
	assert.False(t, rep.Exists)
	assertPeriod(t, rep.Period, 0, 0, 0, 0)
	assert.Empty(t, rep.Entries)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	usd, _ := money.NewAmountFromMinorUnits("USD", 100)

	cases := map[string]func(e *ledger.Entry){
		"date":         func(e *ledger.Entry) { e.Date = time.Time{} },
		"description":  func(e *ledger.Entry) { e.Description = "   " },
		"kind":         func(e *ledger.Entry) { e.Kind = "transfer" },
		"amount":       func(e *ledger.Entry) { e.Amount = rupees(0) },
		"account_head": func(e *ledger.Entry) { e.AccountHead = "" },
		"voucher_type": func(e *ledger.Entry) { e.VoucherType = "invoice" },
	}
	for field, mutate := range cases {
		e := newEntry(jan(3), ledger.KindCredit, 10)
		mutate(&e)
		_, _, err := svc.AddEntry(ctx, e, "")
		var ve *errs.ValidationError
		require.ErrorAs(t, err, &ve, field)
		assert.Equal(t, field, ve.Field)
	}

	e := newEntry(jan(3), ledger.KindCredit, 10)
	e.Amount = usd
	_, _, err := svc.AddEntry(ctx, e, "")
	assert.ErrorIs(t, err, errs.ErrInvalid)

	ok := newEntry(jan(3), ledger.KindCredit, 10)
	ok.VoucherType = "Receipt"
	got, _, err := svc.AddEntry(ctx, ok, "")
	require.NoError(t, err)
	assert.Equal(t, "receipt", got.VoucherType)
	assert.Equal(t, "freight_income", got.AccountHead)
}

func TestAmountRangeAndPrecision(t *testing.T) {
	ctx := context.Background()
	parse := func(s string) money.Amount {
		a, err := money.ParseAmount("INR", s)
		require.NoError(t, err)
		return a
	}
	huge := parse("99999999999999999.99")

	t.Run("opening balance too large", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.SetOpeningBalance(ctx, huge, jan(1), "")
		var ve *errs.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "amount", ve.Field)
		assert.Equal(t, "out of range", ve.Reason)
		_, err = svc.OpeningBalance(ctx)
		assert.ErrorIs(t, err, errs.ErrNotFound, "nothing may be stored")
	})

	t.Run("entry too large", func(t *testing.T) {
		svc, _ := newService(t)
		e := newEntry(jan(3), ledger.KindCredit, 10)
		e.Amount = huge
		_, _, err := svc.AddEntry(ctx, e, "")
		var ve *errs.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "out of range", ve.Reason)
	})

	t.Run("sub-paisa precision", func(t *testing.T) {
		svc, _ := newService(t)
		e := newEntry(jan(3), ledger.KindCredit, 10)
		e.Amount = parse("10.005")
		_, _, err := svc.AddEntry(ctx, e, "")
		var ve *errs.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "more precision than the currency allows", ve.Reason)

		_, err = svc.SetOpeningBalance(ctx, parse("0.001"), jan(1), "")
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "amount", ve.Field)
	})

	t.Run("trailing zeros are exact", func(t *testing.T) {
		svc, _ := newService(t)
		e := newEntry(jan(3), ledger.KindCredit, 10)
		e.Amount = parse("10.500")
		got, _, err := svc.AddEntry(ctx, e, "")
		require.NoError(t, err)
		assert.Equal(t, int64(1050), ledger.MinorUnits(got.Amount))
		assert.Equal(t, "10.50", ledger.FormatAmount(got.Amount))
	})
}

func TestIdempotencyKeyReplaysOriginal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, replayed, err := svc.AddEntry(ctx, newEntry(jan(4), ledger.KindCredit, 70), "req-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := svc.AddEntry(ctx, newEntry(jan(4), ledger.KindCredit, 70), "req-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, allEntries(t, svc), 1)
}
