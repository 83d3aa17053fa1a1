// Package dictionary holds the curated voucher types and account heads offered to clients.
package dictionary

import (
	"sort"

	"github.com/tinoosan/daybook/internal/ledger"
)

type VoucherTypeDef struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	// Kind is the usual direction for the voucher; empty means either.
	Kind ledger.Kind `json:"kind,omitempty"`
}

type AccountHeadDef struct {
	Code  string      `json:"code"`
	Label string      `json:"label"`
	Kind  ledger.Kind `json:"kind"`
}

var voucherTypes = []VoucherTypeDef{
	{Code: "receipt", Label: "Receipt", Kind: ledger.KindCredit},
	{Code: "payment", Label: "Payment", Kind: ledger.KindDebit},
	{Code: "journal", Label: "Journal"},
	{Code: "contra", Label: "Contra"},
	{Code: "sales", Label: "Sales", Kind: ledger.KindCredit},
	{Code: "purchase", Label: "Purchase", Kind: ledger.KindDebit},
	{Code: "expense", Label: "Expense", Kind: ledger.KindDebit},
	{Code: "fuel", Label: "Fuel Slip", Kind: ledger.KindDebit},
	{Code: "trip", Label: "Trip Settlement"},
}

var accountHeads = []AccountHeadDef{
	{Code: "freight_income", Label: "Freight Income", Kind: ledger.KindCredit},
	{Code: "customer_receipts", Label: "Customer Receipts", Kind: ledger.KindCredit},
	{Code: "capital", Label: "Capital", Kind: ledger.KindCredit},
	{Code: "loan_received", Label: "Loan Received", Kind: ledger.KindCredit},
	{Code: "other_income", Label: "Other Income", Kind: ledger.KindCredit},
	{Code: "fuel", Label: "Fuel", Kind: ledger.KindDebit},
	{Code: "tolls", Label: "Tolls & Parking", Kind: ledger.KindDebit},
	{Code: "driver_salary", Label: "Driver Salary", Kind: ledger.KindDebit},
	{Code: "driver_advance", Label: "Driver Advance", Kind: ledger.KindDebit},
	{Code: "repairs", Label: "Repairs & Maintenance", Kind: ledger.KindDebit},
	{Code: "insurance", Label: "Insurance", Kind: ledger.KindDebit},
	{Code: "vehicle_emi", Label: "Vehicle EMI", Kind: ledger.KindDebit},
	{Code: "office_expenses", Label: "Office Expenses", Kind: ledger.KindDebit},
	{Code: "taxes", Label: "Taxes", Kind: ledger.KindDebit},
}

// IsVoucherType reports whether code is a known voucher type.
func IsVoucherType(code string) bool {
	for _, v := range voucherTypes {
		if v.Code == code {
			return true
		}
	}
	return false
}

// VoucherTypes returns the voucher types sorted by code.
func VoucherTypes() []VoucherTypeDef {
	out := append([]VoucherTypeDef(nil), voucherTypes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// AccountHeads returns the curated heads, optionally restricted to one kind.
// Custom heads are allowed on entries; these are suggestions.
func AccountHeads(k *ledger.Kind) []AccountHeadDef {
	out := make([]AccountHeadDef, 0, len(accountHeads))
	for _, h := range accountHeads {
		if k != nil && h.Kind != *k {
			continue
		}
		out = append(out, h)
	}
	return out
}
