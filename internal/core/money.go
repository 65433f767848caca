// Package core provides money parsing and handling utilities.
//
// Amounts are carried as integer cents. The JSON form is a plain number with
// two decimals so persisted state stays readable and round-trips exactly.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var maxMoney = decimal.New(math.MaxInt64/100, 0)

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns ErrInvalidAmount for invalid formats, negative values, or amounts
// that round to zero.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents, err := CentsFromDecimal(d)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// CentsFromDecimal rounds d to two places and returns it as cents.
func CentsFromDecimal(d decimal.Decimal) (int64, error) {
	if d.Abs().GreaterThan(maxMoney) {
		return 0, ErrInvalidAmount
	}
	return d.Round(2).Shift(2).IntPart(), nil
}

// NewMoney builds a Money value from whole units and cents, e.g. NewMoney(12, 50).
func NewMoney(units, cents int64) Money {
	return Money{Cents: units*100 + cents}
}

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float64 returns the value as a float64 for display and ratio math.
// Use cents for sums.
func (m Money) Float64() float64 {
	return float64(m.Cents) / 100.0
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// IsZero reports whether m is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	cents, err := CentsFromDecimal(d)
	if err != nil {
		return fmt.Errorf("decode amount %s: %w", string(b), err)
	}
	m.Cents = cents
	return nil
}
