package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	EUR CurrencyISOCode = "EUR"
	BRL CurrencyISOCode = "BRL"
	USD CurrencyISOCode = "USD"
)

const (
	Comma  Separator = ","
	Period Separator = "."
)

type (
	// CurrencyISOCode is one of the supported currencies.
	CurrencyISOCode string

	// Separator is the character used between decimals or digit groups.
	Separator string

	// DateFormat is a Go reference layout, e.g. "2006-01-02" or "02/01/2006".
	DateFormat string

	// CurrencyFormat describes how amounts are shown to people.
	CurrencyFormat struct {
		ISOCode          CurrencyISOCode `toml:"iso_code"`
		DecimalDigits    int             `toml:"decimal_digits"`
		DecimalSeparator Separator       `toml:"decimal_separator"`
		GroupSeparator   Separator       `toml:"group_separator"`
		SymbolFirst      bool            `toml:"symbol_first"`
		Symbol           string          `toml:"symbol"`
		DisplaySymbol    bool            `toml:"display_symbol"`
	}

	// BudgetSettings holds the customizable display options of a budget.
	BudgetSettings struct {
		DateFormat     DateFormat     `toml:"date_format"`
		CurrencyFormat CurrencyFormat `toml:"currency_format"`
	}
)

// SettingsFor returns the conventional settings for a currency.
func SettingsFor(code CurrencyISOCode) (BudgetSettings, error) {
	switch code {
	case USD:
		return BudgetSettings{
			DateFormat: "01/02/2006",
			CurrencyFormat: CurrencyFormat{ISOCode: USD, DecimalDigits: 2, DecimalSeparator: Period,
				GroupSeparator: Comma, SymbolFirst: true, Symbol: "$", DisplaySymbol: true},
		}, nil
	case EUR:
		return BudgetSettings{
			DateFormat: "02/01/2006",
			CurrencyFormat: CurrencyFormat{ISOCode: EUR, DecimalDigits: 2, DecimalSeparator: Comma,
				GroupSeparator: Period, SymbolFirst: false, Symbol: "€", DisplaySymbol: true},
		}, nil
	case BRL:
		return BudgetSettings{
			DateFormat: "02/01/2006",
			CurrencyFormat: CurrencyFormat{ISOCode: BRL, DecimalDigits: 2, DecimalSeparator: Comma,
				GroupSeparator: Period, SymbolFirst: true, Symbol: "R$", DisplaySymbol: true},
		}, nil
	}
	return BudgetSettings{}, fmt.Errorf("%w: unsupported currency %q", ErrInvalidSettings, string(code))
}

// DefaultSettings returns the USD settings.
func DefaultSettings() BudgetSettings {
	s, _ := SettingsFor(USD)
	return s
}

// Validate checks that the format can render amounts unambiguously.
func (s BudgetSettings) Validate() error {
	var problems []string
	if strings.TrimSpace(string(s.DateFormat)) == "" {
		problems = append(problems, "date format cannot be empty")
	}
	cf := s.CurrencyFormat
	switch cf.ISOCode {
	case EUR, BRL, USD:
	default:
		problems = append(problems, fmt.Sprintf("unsupported currency %q", string(cf.ISOCode)))
	}
	if cf.DecimalDigits < 0 || cf.DecimalDigits > 3 {
		problems = append(problems, fmt.Sprintf("decimal digits %d: must be between 0 and 3", cf.DecimalDigits))
	}
	if cf.DecimalSeparator == cf.GroupSeparator {
		problems = append(problems, "decimal and group separators must differ")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// FormatDate renders d with the budget's date layout.
func (s BudgetSettings) FormatDate(d Date) string {
	return d.Format(string(s.DateFormat))
}

// Format renders a milliunit amount, e.g. "$1,234.56" or "-1.234,56 €".
// Amounts are rounded half away from zero to DecimalDigits.
func (f CurrencyFormat) Format(m Money) string {
	d := decimal.New(int64(m), -3).Round(int32(f.DecimalDigits))
	neg := d.IsNegative()
	digits := d.Abs().StringFixed(int32(f.DecimalDigits))

	intPart, fracPart, _ := strings.Cut(digits, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(string(f.GroupSeparator))
		}
		b.WriteRune(r)
	}
	number := b.String()
	if fracPart != "" {
		number += string(f.DecimalSeparator) + fracPart
	}

	sign := ""
	if neg {
		sign = "-"
	}
	if !f.DisplaySymbol || f.Symbol == "" {
		return sign + number
	}
	if f.SymbolFirst {
		return sign + f.Symbol + number
	}
	return sign + number + " " + f.Symbol
}
