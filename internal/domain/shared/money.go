package shared

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════
// Money Value Object
// ═══════════════════════════════════════════════════════════════════════════

// MoneyScale is the number of fractional digits kept for every amount.
// It matches the NUMERIC(18,2) columns of the ledger tables.
const MoneyScale = 2

// maxMoney bounds every amount: NUMERIC(18,2) holds values below 10^16.
var maxMoney = decimal.New(1, 16)

// Exponents outside this range cannot be NUMERIC(18,2) values. They are
// rejected before rounding, which would otherwise expand 10^exp digits.
const (
	minMoneyExp = -(MoneyScale + 18)
	maxMoneyExp = 18
)

// ErrInvalidMoney is returned when a string is not a monetary value.
var ErrInvalidMoney = NewDomainError("money", "Parse", ErrValidation, "INVALID_AMOUNT", "invalid monetary value")

// Money is an exact decimal amount in the ledger currency.
// The zero value is a valid zero amount.
type Money struct {
	amount decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// NewMoney creates Money from a decimal, rounded to MoneyScale.
func NewMoney(d decimal.Decimal) Money {
	return Money{amount: d.Round(MoneyScale)}
}

// MoneyFromInt creates Money from a whole amount.
func MoneyFromInt(v int64) Money {
	return Money{amount: decimal.NewFromInt(v)}
}

// ParseMoney parses a decimal string such as "1500" or "1500.50".
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalidMoney.WithMessage("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, ErrInvalidMoney.WithMessage(fmt.Sprintf("amount %q is not a number", s))
	}
	return moneyInRange(d)
}

// moneyInRange rounds d to MoneyScale if it fits the ledger columns.
func moneyInRange(d decimal.Decimal) (Money, error) {
	if exp := d.Exponent(); exp > maxMoneyExp || exp < minMoneyExp {
		return Zero, ErrInvalidMoney.WithMessage("amount is out of range")
	}
	m := NewMoney(d)
	if m.amount.Abs().Cmp(maxMoney) >= 0 {
		return Zero, ErrInvalidMoney.WithMessage("amount is out of range")
	}
	return m, nil
}

// MustParseMoney is like ParseMoney but panics on error.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// Cmp compares m and other: -1, 0 or +1.
func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

// Equal reports whether both amounts are the same value.
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// GreaterThan reports m > other.
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// IsZero reports m == 0.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports m > 0.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative reports m < 0.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// String returns the amount with exactly MoneyScale fractional digits.
func (m Money) String() string {
	return m.amount.StringFixed(MoneyScale)
}

// MarshalJSON encodes the amount as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidMoney.WithMessage("amount must be a number")
	}
	v, err := moneyInRange(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
