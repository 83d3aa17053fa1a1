// Package export renders ledger rows as CSV, XLSX and PDF documents.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/tinoosan/daybook/internal/ledger"
)

// Format is a tabular export format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat defaults to CSV when s is empty.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

func (f Format) Extension() string { return string(f) }

// Write renders entries in format f.
func Write(w io.Writer, f Format, entries []ledger.Entry) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, entries)
	case FormatXLSX:
		return WriteXLSX(w, entries)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// header is the column layout shared by CSV and XLSX.
var header = []string{
	"Date", "Voucher Type", "Voucher No", "Description", "Account Head", "Party", "Category",
	"Debit", "Credit", "Balance", "Entry ID",
}

const dateLayout = "2006-01-02"

// row renders e as display strings in header order. The unused side of the
// debit/credit pair is left blank.
func row(e ledger.Entry) []string {
	var debit, credit string
	if e.Kind == ledger.KindDebit {
		debit = ledger.FormatAmount(e.Amount)
	} else {
		credit = ledger.FormatAmount(e.Amount)
	}
	return []string{
		e.Date.UTC().Format(dateLayout), e.VoucherType, e.VoucherNo, e.Description, e.AccountHead,
		e.Party, e.Category, debit, credit, ledger.FormatAmount(e.Balance), e.ID.String(),
	}
}
