package sqlutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/meta"
)

// PeriodColumns is the select list for monthly_periods, in scan order.
const PeriodColumns = `year, month, currency, opening_minor, closing_minor, credits_minor, debits_minor,
	closed, closed_at, created_at, updated_at`

// EntryRecord is an entries row as stored.
type EntryRecord struct {
	ID           uuid.UUID
	Date         time.Time
	Description  string
	Kind         string
	Currency     string
	AmountMinor  int64
	BalanceMinor int64
	AccountHead  string
	VoucherType  string
	VoucherNo    string
	Party        string
	Category     string
	Metadata     []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EntryDest returns scan destinations matching EntryColumns.
func (d Dialect) EntryDest(r *EntryRecord) []any {
	return []any{
		&r.ID, d.ScanTime(&r.Date), &r.Description, &r.Kind, &r.Currency, &r.AmountMinor, &r.BalanceMinor,
		&r.AccountHead, &r.VoucherType, &r.VoucherNo, &r.Party, &r.Category, &r.Metadata,
		d.ScanTime(&r.CreatedAt), d.ScanTime(&r.UpdatedAt),
	}
}

// Entry converts the row into its domain form.
func (r EntryRecord) Entry() (ledger.Entry, error) {
	kind, ok := ledger.ParseKind(r.Kind)
	if !ok {
		return ledger.Entry{}, fmt.Errorf("entry %s: %w", r.ID, ledger.ErrUnknownKind)
	}
	amount, err := money.NewAmountFromMinorUnits(r.Currency, r.AmountMinor)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s amount: %w", r.ID, err)
	}
	balance, err := money.NewAmountFromMinorUnits(r.Currency, r.BalanceMinor)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s balance: %w", r.ID, err)
	}
	md, err := meta.Parse(r.Metadata)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s metadata: %w", r.ID, err)
	}
	return ledger.Entry{
		ID:          r.ID,
		Date:        r.Date.UTC(),
		Description: r.Description,
		Kind:        kind,
		Amount:      amount,
		Balance:     balance,
		AccountHead: r.AccountHead,
		VoucherType: r.VoucherType,
		VoucherNo:   r.VoucherNo,
		Party:       r.Party,
		Category:    r.Category,
		Metadata:    md,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}, nil
}

// EntryArgs returns insert values matching EntryColumns.
func (d Dialect) EntryArgs(e ledger.Entry) ([]any, error) {
	md, err := e.Metadata.MarshalStableJSON()
	if err != nil {
		return nil, err
	}
	return []any{
		e.ID, d.Time(e.Date), e.Description, string(e.Kind), e.Amount.Curr().Code(),
		ledger.MinorUnits(e.Amount), ledger.MinorUnits(e.Balance),
		e.AccountHead, e.VoucherType, e.VoucherNo, e.Party, e.Category, string(md),
		d.Time(e.CreatedAt), d.Time(e.UpdatedAt),
	}, nil
}

// PeriodRecord is a monthly_periods row as stored.
type PeriodRecord struct {
	Year         int
	Month        int
	Currency     string
	OpeningMinor int64
	ClosingMinor int64
	CreditsMinor int64
	DebitsMinor  int64
	Closed       bool
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PeriodDest returns scan destinations matching PeriodColumns.
func (d Dialect) PeriodDest(r *PeriodRecord) []any {
	return []any{
		&r.Year, &r.Month, &r.Currency, &r.OpeningMinor, &r.ClosingMinor, &r.CreditsMinor, &r.DebitsMinor,
		&r.Closed, d.ScanNullTime(&r.ClosedAt), d.ScanTime(&r.CreatedAt), d.ScanTime(&r.UpdatedAt),
	}
}

func (r PeriodRecord) Period() (ledger.MonthlyPeriod, error) {
	m, err := ledger.NewMonth(r.Year, r.Month)
	if err != nil {
		return ledger.MonthlyPeriod{}, err
	}
	p := ledger.MonthlyPeriod{Month: m, Closed: r.Closed, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
	for _, f := range []struct {
		dst   *money.Amount
		minor int64
	}{{&p.Opening, r.OpeningMinor}, {&p.Closing, r.ClosingMinor}, {&p.Credits, r.CreditsMinor}, {&p.Debits, r.DebitsMinor}} {
		a, err := money.NewAmountFromMinorUnits(r.Currency, f.minor)
		if err != nil {
			return ledger.MonthlyPeriod{}, fmt.Errorf("period %s: %w", m, err)
		}
		*f.dst = a
	}
	if r.ClosedAt != nil {
		t := r.ClosedAt.UTC()
		p.ClosedAt = &t
	}
	return p, nil
}

// PeriodArgs returns upsert values matching PeriodColumns.
func (d Dialect) PeriodArgs(p ledger.MonthlyPeriod) []any {
	var closedAt any
	if p.ClosedAt != nil {
		closedAt = d.Time(*p.ClosedAt)
	}
	return []any{
		p.Month.Year, int(p.Month.Month), p.Opening.Curr().Code(),
		ledger.MinorUnits(p.Opening), ledger.MinorUnits(p.Closing), ledger.MinorUnits(p.Credits), ledger.MinorUnits(p.Debits),
		p.Closed, closedAt, d.Time(p.CreatedAt), d.Time(p.UpdatedAt),
	}
}

// Placeholders renders n bind parameters starting after offset, comma separated.
func (d Dialect) Placeholders(offset, n int) string {
	out := make([]byte, 0, n*4)
	for i := 1; i <= n; i++ {
		if i > 1 {
			out = append(out, ", "...)
		}
		out = append(out, d.Placeholder(offset+i)...)
	}
	return string(out)
}
