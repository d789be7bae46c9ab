package payout

import "math/bits"

// Split of each snapshot between holders and the operator.
const (
	HolderSharePercent   = 80
	OperatorSharePercent = 20
)

// ClaimShare is the per-token payout for an interval:
// floor(floor(lastBalance*80/100) / supply). Truncation remainders stay in
// the vault as undistributed dust. A zero supply yields zero.
func ClaimShare(lastBalance, supply uint64) uint64 {
	if supply == 0 {
		return 0
	}
	return percentOf(lastBalance, HolderSharePercent) / supply
}

// OperatorShare is the operator's withdrawal amount: floor(lastBalance*20/100).
func OperatorShare(lastBalance uint64) uint64 {
	return percentOf(lastBalance, OperatorSharePercent)
}

// percentOf computes floor(v*pct/100) with a 128-bit intermediate.
func percentOf(v, pct uint64) uint64 {
	hi, lo := bits.Mul64(v, pct)
	q, _ := bits.Div64(hi, lo, 100)
	return q
}

// mulAmount returns share*n, or false on overflow.
func mulAmount(share uint64, n int) (uint64, bool) {
	hi, lo := bits.Mul64(share, uint64(n))
	return lo, hi == 0
}
