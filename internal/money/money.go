package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major-unit price (rupees) into minor units (paise).
func ToMinor(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return 0, ErrTooManyDecimals
	}
	return amount.Mul(hundred).IntPart(), nil
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	formatted := fmt.Sprintf("%d.%02d", value/100, value%100)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// Format renders a major-unit amount with two decimals.
func Format(amount decimal.Decimal) string {
	return amount.StringFixedBank(2)
}
