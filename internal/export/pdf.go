package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/tinoosan/daybook/internal/ledger"
)

// StatementPDF renders a monthly statement: the period summary followed by
// the month's entries with their running balances.
func StatementPDF(w io.Writer, title string, rep ledger.MonthlyReport, generated time.Time) error {
	p := rep.Period
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %s", p.Month))
	pdf.Ln(5)
	status := "Open"
	if p.Closed {
		status = "Closed"
		if p.ClosedAt != nil {
			status += " " + p.ClosedAt.UTC().Format(time.RFC3339)
		}
	}
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	summary := [][2]string{
		{"Opening balance", ledger.FormatAmount(p.Opening)},
		{"Total credits", ledger.FormatAmount(p.Credits)},
		{"Total debits", ledger.FormatAmount(p.Debits)},
		{"Closing balance", ledger.FormatAmount(p.Closing)},
	}
	for _, kv := range summary {
		pdf.CellFormat(50, 6, kv[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, kv[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	cols := []struct {
		title string
		width float64
		align string
	}{
		{"Date", 24, "C"}, {"Voucher", 34, "L"}, {"Description", 80, "L"}, {"Account Head", 45, "L"},
		{"Debit", 30, "R"}, {"Credit", 30, "R"}, {"Balance", 34, "R"},
	}
	pdf.SetFont("Arial", "B", 9)
	for _, c := range cols {
		pdf.CellFormat(c.width, 6, c.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, e := range rep.Entries {
		var debit, credit string
		if e.Kind == ledger.KindDebit {
			debit = ledger.FormatAmount(e.Amount)
		} else {
			credit = ledger.FormatAmount(e.Amount)
		}
		voucher := e.VoucherType
		if e.VoucherNo != "" {
			voucher += " " + e.VoucherNo
		}
		values := []string{
			e.Date.UTC().Format(dateLayout), voucher, truncate(e.Description, 48), truncate(e.AccountHead, 26),
			debit, credit, ledger.FormatAmount(e.Balance),
		}
		for i, c := range cols {
			pdf.CellFormat(c.width, 6, values[i], "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(rep.Entries) == 0 {
		pdf.CellFormat(0, 6, "No entries in this month.", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
