// Package money implements the single-currency monetary value used by every
// episode entity. Amounts are integer minor units and never negative.
package money

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

// Money is an immutable non-negative amount in minor units
type Money struct {
	amount int64
}

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(math.MaxInt64)
)

// Of creates Money from a minor-unit amount
func Of(amount int64) (Money, error) {
	if amount < 0 {
		return Money{}, apperr.Newf(apperr.InvalidAmount, "amount must not be negative: %d", amount)
	}
	return Money{amount: amount}, nil
}

// MustOf is Of for constants known to be valid
func MustOf(amount int64) Money {
	m, err := Of(amount)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount
func Zero() Money { return Money{} }

// Amount returns the raw minor-unit value
func (m Money) Amount() int64 { return m.amount }

// Add returns m + other. It fails rather than overflowing.
func (m Money) Add(other Money) (Money, error) {
	if other.amount > math.MaxInt64-m.amount {
		return Money{}, apperr.Newf(apperr.InvalidAmount, "amount overflows: %d + %d", m.amount, other.amount)
	}
	return Money{amount: m.amount + other.amount}, nil
}

// Subtract returns m - other. It fails rather than going below zero.
func (m Money) Subtract(other Money) (Money, error) {
	if other.amount > m.amount {
		return Money{}, apperr.Newf(apperr.InvalidAmount, "insufficient amount: %d - %d", m.amount, other.amount)
	}
	return Money{amount: m.amount - other.amount}, nil
}

// Multiply returns m * factor rounded half-up to a whole minor unit
func (m Money) Multiply(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, apperr.Newf(apperr.InvalidAmount, "factor must not be negative: %s", factor)
	}
	product := decimal.NewFromInt(m.amount).Mul(factor).Round(0)
	if product.GreaterThan(maxAmount) {
		return Money{}, apperr.Newf(apperr.InvalidAmount, "amount overflows: %d * %s", m.amount, factor)
	}
	return Money{amount: product.IntPart()}, nil
}

// Times returns m multiplied by a whole quantity
func (m Money) Times(quantity int64) (Money, error) {
	return m.Multiply(decimal.NewFromInt(quantity))
}

// Percentage returns rate percent of m, rounded half-up
func (m Money) Percentage(rate decimal.Decimal) (Money, error) {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return Money{}, apperr.Newf(apperr.InvalidAmount, "rate must be between 0 and 100: %s", rate)
	}
	return m.Multiply(rate.Div(hundred))
}

// ApplyDiscount returns m reduced by rate percent
func (m Money) ApplyDiscount(rate decimal.Decimal) (Money, error) {
	discount, err := m.Percentage(rate)
	if err != nil {
		return Money{}, err
	}
	return m.Subtract(discount)
}

func (m Money) IsZero() bool     { return m.amount == 0 }
func (m Money) IsPositive() bool { return m.amount > 0 }

// IsGreaterThanOrEqual reports m >= other
func (m Money) IsGreaterThanOrEqual(other Money) bool { return m.amount >= other.amount }

// IsLessThanOrEqual reports m <= other
func (m Money) IsLessThanOrEqual(other Money) bool { return m.amount <= other.amount }

// Equal reports value equality
func (m Money) Equal(other Money) bool { return m.amount == other.amount }

// String formats the amount with thousands separators, e.g. "12,000원"
func (m Money) String() string {
	return groupThousands(m.amount) + "원"
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}

// MarshalJSON encodes the amount as a bare integer
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.amount)
}

// UnmarshalJSON decodes a bare integer and rejects null and negative amounts
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return apperr.New(apperr.InvalidAmount, "amount is required")
	}
	var amount int64
	if err := json.Unmarshal(data, &amount); err != nil {
		return apperr.Wrap(apperr.InvalidAmount, "amount must be an integer", err)
	}
	v, err := Of(amount)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value stores the amount in a single integer column
func (m Money) Value() (driver.Value, error) {
	return m.amount, nil
}

// Scan reads the amount from an integer column
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		m.amount = v
	case int32:
		m.amount = int64(v)
	case nil:
		m.amount = 0
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
	if m.amount < 0 {
		return apperr.Newf(apperr.InvalidAmount, "stored amount is negative: %d", m.amount)
	}
	return nil
}
