package export

import (
	"encoding/csv"
	"io"

	"github.com/tinoosan/daybook/internal/ledger"
)

// WriteCSV writes a header row followed by one row per entry.
func WriteCSV(w io.Writer, entries []ledger.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(row(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
