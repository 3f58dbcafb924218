package core

import (
	"fmt"
	"time"
)

// Date is a calendar day. The time-of-day component is always midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the calendar month the date falls in.
func (d Date) Month() MonthKey {
	return NewMonthKey(d.Time.Year(), int(d.Time.Month()))
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// DaysUntil returns the number of whole days from d to later.
// The result is negative when later precedes d.
func (d Date) DaysUntil(later Date) int {
	return int(later.Sub(d.Time).Hours() / 24)
}

// String renders the ISO form "2006-01-02".
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Validate reports whether the date is usable by the ledger.
func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// MonthKey identifies a calendar month as a single ordinal: year*12 + (month-1).
// Consecutive months have consecutive keys, so ordering and gap checks are
// plain integer comparisons.
type MonthKey int32

// NewMonthKey returns the key for the given year and month (1-12).
func NewMonthKey(year, month int) MonthKey {
	return MonthKey(year*12 + (month - 1))
}

// ParseMonthKey parses "2024-01".
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, fmt.Errorf("parse month %q: %w", s, ErrInvalidMonth)
	}
	return NewMonthKey(t.Year(), int(t.Month())), nil
}

// Year returns the calendar year.
func (k MonthKey) Year() int { return int(k) / 12 }

// Month returns the calendar month (1-12).
func (k MonthKey) Month() int { return int(k)%12 + 1 }

// Next returns the following month.
func (k MonthKey) Next() MonthKey { return k + 1 }

// Prev returns the preceding month.
func (k MonthKey) Prev() MonthKey { return k - 1 }

// MonthsUntil returns how many months separate k from later (0 when equal).
func (k MonthKey) MonthsUntil(later MonthKey) int { return int(later - k) }

// First returns the first day of the month.
func (k MonthKey) First() Date { return NewDate(k.Year(), k.Month(), 1) }

// Last returns the last day of the month.
func (k MonthKey) Last() Date { return DateOf(k.Next().First().AddDate(0, 0, -1)) }

// String renders the key as "2024-01".
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year(), k.Month())
}
