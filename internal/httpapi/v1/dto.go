package v1

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/tinoosan/daybook/internal/errs"
	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/tinoosan/daybook/internal/meta"
	"github.com/tinoosan/daybook/internal/service/daybook"
)

const dateOnly = "2006-01-02"

// apiTime accepts RFC3339 timestamps or plain YYYY-MM-DD dates (midnight UTC).
type apiTime struct{ time.Time }

func parseAPITime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), false, nil
}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, _, err := parseAPITime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

type postEntryRequest struct {
	Date        apiTime           `json:"date"`
	Description string            `json:"description"`
	Kind        string            `json:"kind"`
	Currency    string            `json:"currency,omitempty"`
	AmountMinor *int64            `json:"amount_minor,omitempty"`
	Amount      string            `json:"amount,omitempty"`
	AccountHead string            `json:"account_head"`
	VoucherType string            `json:"voucher_type"`
	VoucherNo   string            `json:"voucher_no,omitempty"`
	Party       string            `json:"party,omitempty"`
	Category    string            `json:"category,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type patchEntryRequest struct {
	Date        *apiTime           `json:"date,omitempty"`
	Description *string            `json:"description,omitempty"`
	Kind        *string            `json:"kind,omitempty"`
	Currency    string             `json:"currency,omitempty"`
	AmountMinor *int64             `json:"amount_minor,omitempty"`
	Amount      *string            `json:"amount,omitempty"`
	AccountHead *string            `json:"account_head,omitempty"`
	VoucherType *string            `json:"voucher_type,omitempty"`
	VoucherNo   *string            `json:"voucher_no,omitempty"`
	Party       *string            `json:"party,omitempty"`
	Category    *string            `json:"category,omitempty"`
	Metadata    *map[string]string `json:"metadata,omitempty"`
}

type openingBalanceRequest struct {
	Date        apiTime `json:"date"`
	Currency    string  `json:"currency,omitempty"`
	AmountMinor *int64  `json:"amount_minor,omitempty"`
	Amount      string  `json:"amount,omitempty"`
	Notes       string  `json:"notes,omitempty"`
}

type entryResponse struct {
	ID           uuid.UUID         `json:"id"`
	Date         time.Time         `json:"date"`
	Description  string            `json:"description"`
	Kind         ledger.Kind       `json:"kind"`
	Currency     string            `json:"currency"`
	AmountMinor  int64             `json:"amount_minor"`
	Amount       string            `json:"amount"`
	BalanceMinor int64             `json:"balance_minor"`
	Balance      string            `json:"balance"`
	AccountHead  string            `json:"account_head"`
	VoucherType  string            `json:"voucher_type"`
	VoucherNo    string            `json:"voucher_no,omitempty"`
	Party        string            `json:"party,omitempty"`
	Category     string            `json:"category,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type entryPageResponse struct {
	Items    []entryResponse `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type periodResponse struct {
	Period       string     `json:"period"`
	Year         int        `json:"year"`
	Month        int        `json:"month"`
	Currency     string     `json:"currency"`
	OpeningMinor int64      `json:"opening_minor"`
	Opening      string     `json:"opening"`
	ClosingMinor int64      `json:"closing_minor"`
	Closing      string     `json:"closing"`
	CreditsMinor int64      `json:"credits_minor"`
	Credits      string     `json:"credits"`
	DebitsMinor  int64      `json:"debits_minor"`
	Debits       string     `json:"debits"`
	Closed       bool       `json:"closed"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

type monthlyReportResponse struct {
	Period  periodResponse  `json:"period"`
	Exists  bool            `json:"exists"`
	Entries []entryResponse `json:"entries"`
}

type openingBalanceResponse struct {
	Date        time.Time `json:"date"`
	Currency    string    `json:"currency"`
	AmountMinor int64     `json:"amount_minor"`
	Amount      string    `json:"amount"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type recalcResponse struct {
	From      time.Time        `json:"from"`
	TailMinor int64            `json:"tail_minor"`
	Tail      string           `json:"tail"`
	Rewritten int              `json:"rewritten"`
	Months    []periodResponse `json:"months"`
}

// resolveAmount builds an amount from either amount_minor or a decimal string.
// Currency defaults to the ledger currency; a mismatch is left for the service to reject.
func resolveAmount(field, currency, ledgerCurrency string, minor *int64, decimal string) (money.Amount, error) {
	curr := strings.ToUpper(strings.TrimSpace(currency))
	if curr == "" {
		curr = ledgerCurrency
	}
	switch {
	case minor != nil && decimal != "":
		return money.Amount{}, errs.Invalid(field, "send either amount or amount_minor, not both")
	case minor != nil:
		a, err := money.NewAmountFromMinorUnits(curr, *minor)
		if err != nil {
			return money.Amount{}, errs.Invalid(field, err.Error())
		}
		return a, nil
	case decimal != "":
		a, err := money.ParseAmount(curr, strings.TrimSpace(decimal))
		if err != nil {
			return money.Amount{}, errs.Invalid(field, err.Error())
		}
		return a, nil
	}
	return money.Amount{}, errs.Invalid(field, "required")
}

// parseKind keeps unknown input so the service reports it as invalid.
func parseKind(raw string) ledger.Kind {
	if k, ok := ledger.ParseKind(raw); ok {
		return k
	}
	return ledger.Kind(strings.TrimSpace(raw))
}

func toEntryDomain(req postEntryRequest, ledgerCurrency string) (ledger.Entry, error) {
	amt, err := resolveAmount("amount", req.Currency, ledgerCurrency, req.AmountMinor, req.Amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		Date:        req.Date.Time,
		Description: req.Description,
		Kind:        parseKind(req.Kind),
		Amount:      amt,
		AccountHead: req.AccountHead,
		VoucherType: req.VoucherType,
		VoucherNo:   req.VoucherNo,
		Party:       req.Party,
		Category:    req.Category,
		Metadata:    meta.New(req.Metadata),
	}, nil
}

func toPatchDomain(req patchEntryRequest, ledgerCurrency string) (ledger.EntryPatch, error) {
	p := ledger.EntryPatch{
		Description: req.Description,
		AccountHead: req.AccountHead,
		VoucherType: req.VoucherType,
		VoucherNo:   req.VoucherNo,
		Party:       req.Party,
		Category:    req.Category,
	}
	if req.Date != nil {
		if req.Date.IsZero() {
			return p, errs.Invalid("date", "required")
		}
		d := req.Date.Time
		p.Date = &d
	}
	if req.Kind != nil {
		k := parseKind(*req.Kind)
		p.Kind = &k
	}
	if req.AmountMinor != nil || req.Amount != nil {
		var dec string
		if req.Amount != nil {
			dec = *req.Amount
			if dec == "" {
				return p, errs.Invalid("amount", "required")
			}
		}
		a, err := resolveAmount("amount", req.Currency, ledgerCurrency, req.AmountMinor, dec)
		if err != nil {
			return p, err
		}
		p.Amount = &a
	}
	if req.Metadata != nil {
		m := meta.New(*req.Metadata)
		p.Metadata = &m
	}
	return p, nil
}

func toEntryResponse(e ledger.Entry) entryResponse {
	var md map[string]string
	if len(e.Metadata) > 0 {
		md = e.Metadata.Clone()
	}
	return entryResponse{
		ID:           e.ID,
		Date:         e.Date,
		Description:  e.Description,
		Kind:         e.Kind,
		Currency:     e.Amount.Curr().Code(),
		AmountMinor:  ledger.MinorUnits(e.Amount),
		Amount:       ledger.FormatAmount(e.Amount),
		BalanceMinor: ledger.MinorUnits(e.Balance),
		Balance:      ledger.FormatAmount(e.Balance),
		AccountHead:  e.AccountHead,
		VoucherType:  e.VoucherType,
		VoucherNo:    e.VoucherNo,
		Party:        e.Party,
		Category:     e.Category,
		Metadata:     md,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toEntryResponses(in []ledger.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(in))
	for _, e := range in {
		out = append(out, toEntryResponse(e))
	}
	return out
}

func toPeriodResponse(p ledger.MonthlyPeriod) periodResponse {
	return periodResponse{
		Period:       p.Month.String(),
		Year:         p.Month.Year,
		Month:        int(p.Month.Month),
		Currency:     p.Opening.Curr().Code(),
		OpeningMinor: ledger.MinorUnits(p.Opening),
		Opening:      ledger.FormatAmount(p.Opening),
		ClosingMinor: ledger.MinorUnits(p.Closing),
		Closing:      ledger.FormatAmount(p.Closing),
		CreditsMinor: ledger.MinorUnits(p.Credits),
		Credits:      ledger.FormatAmount(p.Credits),
		DebitsMinor:  ledger.MinorUnits(p.Debits),
		Debits:       ledger.FormatAmount(p.Debits),
		Closed:       p.Closed,
		ClosedAt:     p.ClosedAt,
	}
}

func toPeriodResponses(in []ledger.MonthlyPeriod) []periodResponse {
	out := make([]periodResponse, 0, len(in))
	for _, p := range in {
		out = append(out, toPeriodResponse(p))
	}
	return out
}

func toOpeningBalanceResponse(ob ledger.OpeningBalance) openingBalanceResponse {
	return openingBalanceResponse{
		Date:        ob.Date,
		Currency:    ob.Amount.Curr().Code(),
		AmountMinor: ledger.MinorUnits(ob.Amount),
		Amount:      ledger.FormatAmount(ob.Amount),
		Notes:       ob.Notes,
		CreatedAt:   ob.CreatedAt,
	}
}

func toRecalcResponse(res daybook.RecalcResult) recalcResponse {
	return recalcResponse{
		From:      res.From,
		TailMinor: ledger.MinorUnits(res.Tail),
		Tail:      ledger.FormatAmount(res.Tail),
		Rewritten: res.Rewritten,
		Months:    toPeriodResponses(res.Months),
	}
}
