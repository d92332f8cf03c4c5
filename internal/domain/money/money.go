// Package money does exact arithmetic over the ledger's smallest value unit.
// Nothing here touches floating point; decimal strings exist only at the boundary.
package money

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"scheduled_payments/internal/domain/entity"
)

// BasisPointsDenominator is 100% expressed in basis points.
const BasisPointsDenominator = 10000

var bpsDenominator = big.NewInt(BasisPointsDenominator)

// Principal returns amountPerExecution * executions.
func Principal(amountPerExecution *big.Int, executions uint64) *big.Int {
	if amountPerExecution == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(amountPerExecution, new(big.Int).SetUint64(executions))
}

// Fee returns floor(principal * feeRateBps / 10000). Division truncates toward zero,
// so rounding never adds to what the payer is charged.
func Fee(principal *big.Int, feeRateBps uint32) *big.Int {
	if principal == nil {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(principal, big.NewInt(int64(feeRateBps)))
	return fee.Quo(fee, bpsDenominator)
}

// PreviewCost computes principal, fee and total for funding a schedule.
func PreviewCost(amountPerExecution *big.Int, executions uint64, feeRateBps uint32) (entity.CostPreview, error) {
	if amountPerExecution == nil || amountPerExecution.Sign() < 0 {
		return entity.CostPreview{}, fmt.Errorf("%w: amount must not be negative", entity.ErrInvalidAmount)
	}
	principal := Principal(amountPerExecution, executions)
	fee := Fee(principal, feeRateBps)
	return entity.CostPreview{
		Principal:  principal,
		Fee:        fee,
		Total:      new(big.Int).Add(principal, fee),
		FeeRateBps: feeRateBps,
	}, nil
}

// ScaleBy multiplies v by num/den with truncating integer division.
func ScaleBy(v *big.Int, num, den int64) *big.Int {
	if v == nil {
		return nil
	}
	out := new(big.Int).Mul(v, big.NewInt(num))
	return out.Quo(out, big.NewInt(den))
}

// ParseUnits converts a human decimal string ("1.5") into smallest units.
// It rejects values with more fractional digits than decimals instead of rounding.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", entity.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal number", entity.ErrInvalidAmount, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", entity.ErrInvalidAmount, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders smallest units as a decimal string without trailing zeros.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// FormatUnitsFixed renders smallest units truncated to the given number of places.
// Display only; truncation never shows more than is held.
func FormatUnitsFixed(v *big.Int, decimals int32, places int32) string {
	if v == nil {
		v = new(big.Int)
	}
	return decimal.NewFromBigInt(v, -decimals).Truncate(places).StringFixed(places)
}
