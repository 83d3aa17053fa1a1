// Package sqlutil holds the SQL fragments shared by the postgres and sqlite stores.
package sqlutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinoosan/daybook/internal/ledger"
)

// EntryColumns is the select list every store scans entries from, in scan order.
const EntryColumns = `id, entry_date, description, kind, currency, amount_minor, balance_minor,
	account_head, voucher_type, voucher_no, party, category, metadata, created_at, updated_at`

// EntryOrder is the total order of the ledger.
const EntryOrder = `entry_date asc, created_at asc, id asc`

// EntryOrderDesc reverses EntryOrder.
const EntryOrderDesc = `entry_date desc, created_at desc, id desc`

// Dialect captures the differences between the SQL backends.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Like is the case-insensitive match operator.
	Like string
	// Time converts a timestamp into the bound column representation.
	Time func(time.Time) any
	// ScanTime and ScanNullTime wrap scan destinations for timestamp columns.
	ScanTime     func(*time.Time) any
	ScanNullTime func(**time.Time) any
}

// Postgres uses $n placeholders, ILIKE and native timestamps.
var Postgres = Dialect{
	Placeholder:  func(n int) string { return fmt.Sprintf("$%d", n) },
	Like:         "ilike",
	Time:         func(t time.Time) any { return t },
	ScanTime:     func(t *time.Time) any { return t },
	ScanNullTime: func(t **time.Time) any { return t },
}

// EntryWhere renders the WHERE clause (including the keyword, or empty) for f,
// appending bind values after the given leading args.
func (d Dialect) EntryWhere(f ledger.EntryFilter, args []any) (string, []any) {
	var conds []string
	bind := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}
	if f.From != nil {
		conds = append(conds, "entry_date >= "+bind(d.Time(*f.From)))
	}
	if f.To != nil {
		conds = append(conds, "entry_date < "+bind(d.Time(*f.To)))
	}
	if f.Kind != nil {
		conds = append(conds, "kind = "+bind(string(*f.Kind)))
	}
	if f.AccountHead != "" {
		conds = append(conds, "account_head = "+bind(f.AccountHead))
	}
	if f.VoucherType != "" {
		conds = append(conds, "voucher_type = "+bind(f.VoucherType))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := bind("%" + EscapeLike(q) + "%")
		conds = append(conds, fmt.Sprintf(`(description %[1]s %[2]s escape '\' or party %[1]s %[2]s escape '\' or voucher_no %[1]s %[2]s escape '\')`, d.Like, p))
	}
	if len(conds) == 0 {
		return "", args
	}
	return "where " + strings.Join(conds, " and "), args
}

// EscapeLike escapes LIKE wildcards so q matches literally.
func EscapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}
