// Package fixed implements the fixed-point arithmetic used by the escrow.
// Amounts are *big.Int values in stable-coin minor units; the scale is
// 10^decimals. Division rounds toward zero everywhere, so every derived
// quantity (prices, token amounts, fees) is bit-identical across replicas.
package fixed

import (
	"fmt"
	"math/big"
	"strings"
)

var (
	zero = big.NewInt(0)
	ten  = big.NewInt(10)
)

// One returns the scale factor 10^decimals.
func One(decimals uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// Parse converts a non-negative decimal string such as "15" or "0.25" into
// minor units at the given scale. Fractional digits beyond the scale are
// rejected rather than silently truncated.
func Parse(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}

// Format renders minor units back into a decimal string, trimming trailing
// fractional zeros. Format(Parse(s)) is canonical, not necessarily s.
func Format(v *big.Int, decimals uint8) string {
	one := One(decimals)
	q, r := new(big.Int).QuoRem(v, one, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*s", decimals, r.Abs(r).String()), "0")
	return q.String() + "." + frac
}

// DivFloor divides a by b rounding toward zero. Panics on division by zero,
// matching big.Int semantics; callers validate divisors first.
func DivFloor(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(a, b)
}

// MulDiv computes a*b/c with the intermediate product kept at full
// precision, rounding toward zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, c)
}

// IsPositive reports whether v is a non-nil value greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Cmp(zero) > 0
}
