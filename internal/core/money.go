// Package core provides the value types shared by the ledger engine and its
// collaborators.
//
// This file contains the milliunit Money type, exact allocation helpers and
// the decimal parser used at the API boundary.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MilliunitsPerUnit is the number of milliunits in one currency unit.
const MilliunitsPerUnit = 1000

// Money is an amount in milliunits (1/1000 of the budget currency unit).
// All ledger arithmetic happens on this integer representation.
type Money int64

// Add returns m + o.
func (m Money) Add(o Money) Money { return m + o }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return m - o }

// Neg returns -m.
func (m Money) Neg() Money { return -m }

// Abs returns |m|.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Milliunits returns the raw integer amount.
func (m Money) Milliunits() int64 { return int64(m) }

// String renders the plain decimal form with three fractional digits, e.g. "-12.340".
// Use CurrencyFormat.Format for anything shown to a person.
func (m Money) String() string {
	return decimal.New(int64(m), -3).StringFixed(3)
}

// MaxMoney returns the larger of a and b.
func MaxMoney(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

// Split divides total into parts amounts whose sum is exactly total.
//
// Every part receives the truncated quotient; the remainder is handed out one
// milliunit at a time to the first parts, so earlier periods never carry less
// than later ones. For negative totals the extra milliunit is negative.
// Returns nil when parts <= 0.
//
// Examples:
//
//	Split(120000, 3) -> [40000 40000 40000]
//	Split(100, 3)    -> [34 33 33]
//	Split(-100, 3)   -> [-34 -33 -33]
func Split(total Money, parts int) []Money {
	if parts <= 0 {
		return nil
	}
	n := Money(parts)
	q := total / n
	r := total % n // same sign as total
	out := make([]Money, parts)
	step := Money(1)
	if r < 0 {
		step = -1
		r = -r
	}
	for i := range out {
		out[i] = q
		if Money(i) < r {
			out[i] += step
		}
	}
	return out
}

// CeilDiv returns the smallest amount x such that x*n >= a, for a >= 0 and n > 0.
// It equals the first element of Split(a, n).
func CeilDiv(a Money, n int) Money {
	if n <= 0 {
		return a
	}
	d := Money(n)
	q := a / d
	if a%d > 0 {
		q++
	}
	return q
}

// ParseMilliunits converts a decimal string to milliunits.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an optional
// sign and rounds half away from zero on the fourth decimal place. Group
// separators are not accepted; callers strip them according to the budget's
// CurrencyFormat before parsing.
//
// Examples:
//
//	ParseMilliunits("12.34")   -> 12340, nil
//	ParseMilliunits("-1,5")    -> -1500, nil
//	ParseMilliunits("0.0005")  -> 1, nil
func ParseMilliunits(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.Count(s, ",")+strings.Count(s, ".") > 1 {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE_ ") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	milli := d.Shift(3).Round(0)
	// Keep well inside int64 so later sums cannot overflow.
	limit := decimal.New(1, 15)
	if milli.Abs().GreaterThan(limit) {
		return 0, ErrInvalidAmount
	}
	return Money(milli.IntPart()), nil
}
