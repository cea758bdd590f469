package fixed

import "math/big"

// Internal guard scale for ExpNeg. All series arithmetic runs at 10^38 so
// the truncation noise stays far below one unit of any supported coin scale
// (stable coins in the wild use at most 24 decimals).
var guard = new(big.Int).Exp(big.NewInt(10), big.NewInt(38), nil)

const (
	// Argument halvings before the Taylor series. After 7 halvings the
	// reduced argument is at most 0.5, where 30 terms leave a remainder
	// below 0.5^30/30!.
	expHalvings = 7
	expTerms    = 30
	// e^-x scaled by the coin unit underflows to zero well before x = 64
	// for every supported scale (ln(10^24) ~ 55.3).
	expSaturation = 64
)

// ExpNeg returns e^(-y/one) scaled by one, truncated toward zero. y must be
// non-negative and one must be a positive power of ten.
//
// The computation is integer-only and fully deterministic: the argument is
// reduced by expHalvings halvings, the series is evaluated with expTerms
// terms at the guard scale, and the result is squared back up. The absolute
// error is bounded by 2 units in the last place of the coin scale, which is
// what consensus execution needs for bit-identical replicas.
func ExpNeg(y, one *big.Int) *big.Int {
	if y.Sign() == 0 {
		return new(big.Int).Set(one)
	}

	// Saturate: the scaled result would truncate to zero anyway.
	cutoff := new(big.Int).Mul(one, big.NewInt(expSaturation))
	if y.Cmp(cutoff) >= 0 {
		return big.NewInt(0)
	}

	// Rescale the argument to the guard scale and halve it into the
	// series' convergence sweet spot.
	u := MulDiv(y, guard, one)
	u.Rsh(u, expHalvings)

	// e^-u = sum_{n} (-u)^n / n!, alternating, at the guard scale.
	sum := new(big.Int).Set(guard)
	term := new(big.Int).Set(guard)
	for n := int64(1); n <= expTerms; n++ {
		term.Mul(term, u)
		term.Quo(term, guard)
		term.Quo(term, big.NewInt(n))
		if term.Sign() == 0 {
			break
		}
		if n%2 == 1 {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}

	// Undo the argument reduction: e^-y = (e^(-y/2^k))^(2^k).
	for i := 0; i < expHalvings; i++ {
		sum.Mul(sum, sum)
		sum.Quo(sum, guard)
	}

	return MulDiv(sum, one, guard)
}
