package ledger

import (
	"fmt"
	"time"
)

// Month identifies a calendar month. Month boundaries are computed in UTC.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth validates year and month numbers coming from callers.
func NewMonth(year, month int) (Month, error) {
	if year < 1 || year > 9999 {
		return Month{}, fmt.Errorf("year out of range: %d", year)
	}
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("month out of range: %d", month)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

// ParseMonth parses the YYYY-MM form produced by String.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// MonthOf truncates t to its UTC calendar month.
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Start is the first instant of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following month.
func (m Month) End() time.Time { return m.Next().Start() }

func (m Month) Next() Month { return MonthOf(m.Start().AddDate(0, 1, 0)) }

func (m Month) Prev() Month { return MonthOf(m.Start().AddDate(0, -1, 0)) }

// Compare returns -1, 0 or +1.
func (m Month) Compare(o Month) int {
	switch {
	case m.Year < o.Year, m.Year == o.Year && m.Month < o.Month:
		return -1
	case m == o:
		return 0
	}
	return 1
}

func (m Month) Before(o Month) bool { return m.Compare(o) < 0 }

func (m Month) After(o Month) bool { return m.Compare(o) > 0 }

// Key is a sortable integer form (year*100+month) used by SQL stores.
func (m Month) Key() int { return m.Year*100 + int(m.Month) }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }
