package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/tinoosan/daybook/internal/ledger"
	"github.com/xuri/excelize/v2"
)

const entriesSheet = "entries"

// numericColumns are written as numbers so spreadsheets can sum them.
var numericColumns = map[int]bool{7: true, 8: true, 9: true}

// WriteXLSX writes the entries to a single-sheet workbook.
func WriteXLSX(w io.Writer, entries []ledger.Entry) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", entriesSheet); err != nil {
		return err
	}
	if err := setRow(f, 1, toAny(header)); err != nil {
		return err
	}
	for i, e := range entries {
		cells := row(e)
		values := make([]any, len(cells))
		for c, v := range cells {
			values[c] = v
			if numericColumns[c] && v != "" {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					values[c] = n
				}
			}
		}
		if err := setRow(f, i+2, values); err != nil {
			return err
		}
	}
	if err := f.SetPanes(entriesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	return f.Write(w)
}

func setRow(f *excelize.File, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(entriesSheet, cell, &values); err != nil {
		return fmt.Errorf("row %d: %w", n, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
