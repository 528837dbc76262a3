package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICING CONSTANTS
// =============================================================================

// A booking's gross amount is base × 1.1. The platform keeps a 10% service
// fee and a 20% commission, both computed on the base.
var (
	MarkupFactor   = decimal.RequireFromString("1.1")
	ServiceFeeRate = decimal.RequireFromString("0.10")
	CommissionRate = decimal.RequireFromString("0.20")
)

// MoneyPlaces is the precision of every reported currency value.
const MoneyPlaces = 2

// =============================================================================
// MONEY HELPERS
// =============================================================================

// RoundMoney rounds to two decimal places, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ParseMoney parses a non-negative currency amount.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Message: "not a decimal number"}
	}
	if d.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "amount", Message: "must not be negative"}
	}
	return RoundMoney(d), nil
}

// MustMoney is ParseMoney for literals in tests and seed data.
func MustMoney(s string) decimal.Decimal {
	d, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return d
}

// BookingSplit is the decomposition of a paid booking amount.
type BookingSplit struct {
	Base       decimal.Decimal
	ServiceFee decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal // ServiceFee + Commission, i.e. 30% of Base
}

// SplitBooking removes the markup from a gross booking amount.
// Values are unrounded; callers round totals.
func SplitBooking(gross decimal.Decimal) BookingSplit {
	base := BaseFromGross(gross)
	fee := base.Mul(ServiceFeeRate)
	commission := base.Mul(CommissionRate)
	return BookingSplit{
		Base:       base,
		ServiceFee: fee,
		Commission: commission,
		Net:        fee.Add(commission),
	}
}

// BaseFromGross returns gross / 1.1.
func BaseFromGross(gross decimal.Decimal) decimal.Decimal {
	return gross.Div(MarkupFactor)
}

// KeptOnRefund is what the platform keeps from a refunded invoice.
func KeptOnRefund(amount, refundAmount decimal.Decimal) decimal.Decimal {
	return amount.Sub(refundAmount)
}

// SuggestedRefund is the refund proposed to an operator: a previously
// decided refund amount if positive, otherwise the base price.
func SuggestedRefund(amount, refundAmount decimal.Decimal) decimal.Decimal {
	if refundAmount.IsPositive() {
		return refundAmount
	}
	return RoundMoney(BaseFromGross(amount))
}

// ActualRefund is the amount recorded when a refund is finalized: the
// decided refund amount if positive, otherwise the full amount.
func ActualRefund(amount, refundAmount decimal.Decimal) decimal.Decimal {
	if refundAmount.IsPositive() {
		return refundAmount
	}
	return amount
}
