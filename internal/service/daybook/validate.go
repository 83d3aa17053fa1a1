package daybook

import (
	"strings"
	"time"

	"github.com/govalues/money"
	"github.com/tinoosan/daybook/internal/dictionary"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/meta"
	"github.com/tinoosan/daybook/internal/slug"
)

// normalizeDate stores dates in UTC at microsecond precision so every backend
// orders them identically.
func normalizeDate(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }

// normalizeAmount checks the currency, precision and range, and returns a in
// the currency's scale.
func (s *service) normalizeAmount(field string, a money.Amount) (money.Amount, error) {
	if a.Curr().Code() != s.currency {
		return money.Amount{}, errs.Invalid(field, "currency must be "+s.currency)
	}
	if a.Decimal().MinScale() > a.Curr().Scale() {
		return money.Amount{}, errs.Invalid(field, "more precision than the currency allows")
	}
	units, ok := a.MinorUnits()
	if !ok {
		return money.Amount{}, errs.Invalid(field, "out of range")
	}
	return money.NewAmountFromMinorUnits(s.currency, units)
}

// normalizeEntry validates caller-supplied fields and returns the canonical form.
// ID, Balance and the timestamps are left untouched.
func (s *service) normalizeEntry(e ledger.Entry) (ledger.Entry, error) {
	if e.Date.IsZero() {
		return e, errs.Invalid("date", "required")
	}
	e.Date = normalizeDate(e.Date)

	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" {
		return e, errs.Invalid("description", "required")
	}
	if !e.Kind.Valid() {
		return e, errs.Invalid("kind", "must be credit or debit")
	}

	amt, err := s.normalizeAmount("amount", e.Amount)
	if err != nil {
		return e, err
	}
	if ledger.MinorUnits(amt) <= 0 {
		return e, errs.Invalid("amount", "must be > 0")
	}
	e.Amount = amt

	head, ok := slug.Normalize(e.AccountHead)
	if !ok {
		return e, errs.Invalid("account_head", "required")
	}
	e.AccountHead = head

	vt := slug.Slugify(e.VoucherType)
	if vt == "" {
		return e, errs.Invalid("voucher_type", "required")
	}
	if !dictionary.IsVoucherType(vt) {
		return e, errs.Invalid("voucher_type", "unknown voucher type "+vt)
	}
	e.VoucherType = vt

	e.VoucherNo = strings.TrimSpace(e.VoucherNo)
	e.Party = strings.TrimSpace(e.Party)
	e.Category = strings.TrimSpace(e.Category)
	if e.Metadata == nil {
		e.Metadata = meta.New(nil)
	}
	if err := e.Metadata.Validate(); err != nil {
		return e, err
	}
	return e, nil
}
