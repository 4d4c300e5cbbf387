package quote

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// senderFeeRate is the provider's advertised 0.5% fee on the input amount,
// deducted before conversion. Authoritative figures come back on order
// creation and must replace these estimates wherever an order exists.
var senderFeeRate = decimal.RequireFromString("0.005")

// SenderFee returns the estimated token-denominated sender fee.
func SenderFee(amount string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return amt.Mul(senderFeeRate), nil
}

// ReceiveEstimate computes (amount - amount*0.5%) * rate in the
// destination currency. Pure display math, no I/O.
func ReceiveEstimate(amount, rate string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	net := amt.Sub(amt.Mul(senderFeeRate))
	return net.Mul(r), nil
}

// ToSmallestUnit converts a human token amount to smallest units using the
// token's decimals, e.g. "100.5" with 6 decimals -> 100500000.
func ToSmallestUnit(amount string, decimals int32) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	scaled := amt.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return scaled, nil
}
