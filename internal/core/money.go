// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents so that sums in SQL stay exact; the
// decimal representation is only used at the edges (parsing, JSON).
package core

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount bounds a single entry well below the int64 cents range so that
// running totals cannot overflow.
var maxAmount = decimal.New(1, 13)

type Money struct {
	Cents int64
}

// ParseMoney converts a decimal string to Money.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted and the
// value is rounded half-up to whole cents. Negative values are rejected, and so
// is anything that reads as thousands grouping: a comma next to a dot, more
// than one comma, or a comma followed by exactly three digits.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 cents
//	ParseMoney("12,5")   -> 1250 cents
//	ParseMoney("1,000")  -> error
//	ParseMoney("0")      -> 0 cents
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		frac := s[i+1:]
		if strings.ContainsAny(frac, ",") || strings.Contains(s, ".") || (len(frac) == 3 && isDigits(frac)) {
			return Money{}, ErrAmbiguousAmount
		}
		s = s[:i] + "." + frac
	}
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// MoneyFromDecimal rounds d to cents and validates it.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	if d.GreaterThanOrEqual(maxAmount) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: d.Round(2).Shift(2).IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both a JSON string ("12.34") and a JSON number (12.34).
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return ErrInvalidAmount
	}
	parsed, err := ParseMoney(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
