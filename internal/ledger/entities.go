package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/tinoosan/daybook/internal/meta"
)

// Kind is the direction of a daybook entry.
type Kind string

const (
	// KindCredit increases the running balance.
	KindCredit Kind = "credit"
	// KindDebit decreases the running balance.
	KindDebit Kind = "debit"
)

// ErrUnknownKind is returned when arithmetic is attempted with a kind outside the enum.
var ErrUnknownKind = errors.New("unknown entry kind")

// ParseKind accepts credit/debit in any case.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCredit:
		return KindCredit, true
	case KindDebit:
		return KindDebit, true
	}
	return "", false
}

func (k Kind) Valid() bool { return k == KindCredit || k == KindDebit }

// Sign is +1 for credits and -1 for debits.
func (k Kind) Sign() int {
	switch k {
	case KindCredit:
		return 1
	case KindDebit:
		return -1
	}
	return 0
}

// Apply returns balance moved by amount in this kind's direction.
func (k Kind) Apply(balance, amount money.Amount) (money.Amount, error) {
	switch k.Sign() {
	case 1:
		return balance.Add(amount)
	case -1:
		return balance.Sub(amount)
	}
	return money.Amount{}, ErrUnknownKind
}

// Entry is a single dated credit or debit with its derived running balance.
type Entry struct {
	ID          uuid.UUID
	Date        time.Time
	Description string
	Kind        Kind
	Amount      money.Amount
	// Balance is owned by the recalculation engine; callers never set it.
	Balance     money.Amount
	AccountHead string
	VoucherType string
	VoucherNo   string
	Party       string
	Category    string
	Metadata    meta.Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Month returns the calendar month the entry falls in.
func (e Entry) Month() Month { return MonthOf(e.Date) }

// Before reports whether e sorts before o under (date, created, id).
func (e Entry) Before(o Entry) bool {
	if !e.Date.Equal(o.Date) {
		return e.Date.Before(o.Date)
	}
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return strings.Compare(e.ID.String(), o.ID.String()) < 0
}

// EntryPatch carries the fields of an update; nil means unchanged.
type EntryPatch struct {
	Date        *time.Time
	Description *string
	Kind        *Kind
	Amount      *money.Amount
	AccountHead *string
	VoucherType *string
	VoucherNo   *string
	Party       *string
	Category    *string
	Metadata    *meta.Metadata
}

// Apply returns a copy of e with the patch applied.
func (p EntryPatch) Apply(e Entry) Entry {
	out := e
	if p.Date != nil {
		out.Date = p.Date.UTC()
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Kind != nil {
		out.Kind = *p.Kind
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.AccountHead != nil {
		out.AccountHead = *p.AccountHead
	}
	if p.VoucherType != nil {
		out.VoucherType = *p.VoucherType
	}
	if p.VoucherNo != nil {
		out.VoucherNo = *p.VoucherNo
	}
	if p.Party != nil {
		out.Party = *p.Party
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Metadata != nil {
		out.Metadata = p.Metadata.Clone()
	}
	return out
}

// BalanceUpdate is one row rewritten by the recalculation engine.
type BalanceUpdate struct {
	ID      uuid.UUID
	Balance money.Amount
}

// MonthlyPeriod is the opening/closing summary of one calendar month.
type MonthlyPeriod struct {
	Month     Month
	Opening   money.Amount
	Closing   money.Amount
	Credits   money.Amount
	Debits    money.Amount
	Closed    bool
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SameFigures reports whether both periods carry identical amounts.
func (p MonthlyPeriod) SameFigures(o MonthlyPeriod) bool {
	return SameAmount(p.Opening, o.Opening) && SameAmount(p.Closing, o.Closing) &&
		SameAmount(p.Credits, o.Credits) && SameAmount(p.Debits, o.Debits)
}

// OpeningBalance anchors the timeline before the first entry. At most one exists.
type OpeningBalance struct {
	Amount    money.Amount
	Date      time.Time
	Notes     string
	CreatedAt time.Time
}

// MonthlyReport is a period row together with the entries dated inside it.
type MonthlyReport struct {
	Period MonthlyPeriod
	// Exists is false when no period row has been written for the month yet.
	Exists  bool
	Entries []Entry
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// EntryFilter narrows entry listings and exports. From is inclusive, To exclusive.
type EntryFilter struct {
	From        *time.Time
	To          *time.Time
	Kind        *Kind
	AccountHead string
	VoucherType string
	Query       string
	Page        int
	PageSize    int
}

// Normalize fills paging defaults and clamps the page size.
func (f EntryFilter) Normalize() EntryFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Query = strings.TrimSpace(f.Query)
	return f
}

// Offset is the number of rows skipped for the current page.
func (f EntryFilter) Offset() int { return (f.Page - 1) * f.PageSize }

// Matches applies every filter except paging.
func (f EntryFilter) Matches(e Entry) bool {
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.Date.Before(*f.To) {
		return false
	}
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	if f.AccountHead != "" && e.AccountHead != f.AccountHead {
		return false
	}
	if f.VoucherType != "" && e.VoucherType != f.VoucherType {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(e.Description), q) &&
			!strings.Contains(strings.ToLower(e.Party), q) &&
			!strings.Contains(strings.ToLower(e.VoucherNo), q) {
			return false
		}
	}
	return true
}

// EntryPage is one page of a filtered listing.
type EntryPage struct {
	Items    []Entry
	Total    int
	Page     int
	PageSize int
}
