package entity

import "math/big"

// CostPreview is the exact cost of funding a schedule, in the smallest unit.
// Total == Principal + Fee always holds.
type CostPreview struct {
	Principal  *big.Int `json:"principal"`
	Fee        *big.Int `json:"fee"`
	Total      *big.Int `json:"total"`
	FeeRateBps uint32   `json:"feeRateBps"`
}
