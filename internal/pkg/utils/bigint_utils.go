package utils

import (
	"math/big"

	"scheduled_payments/internal/domain/money"
)

// FormatBigInt converts a big.Int value to a human-readable string,
// considering the given number of decimals.
// Example: amount=1234500000000000000, decimals=18 => "1.2345"
// The conversion is exact; no float is involved.
func FormatBigInt(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}
	return money.FormatUnits(amount, int32(decimals))
}

// FormatAmount renders amount with a fixed number of places and the unit symbol, e.g. "0.0400 ETH".
func FormatAmount(amount *big.Int, decimals uint8, places int32, symbol string) string {
	s := money.FormatUnitsFixed(amount, int32(decimals), places)
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}
