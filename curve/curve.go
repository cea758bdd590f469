// Package curve implements the bonding curves that price escrow
// contributions. A curve maps the cumulative contributed amount to the
// marginal token price, both in stable-coin minor units, and every variant
// is monotone non-decreasing so earlier contributors never pay more than
// later ones.
package curve

import (
	"fmt"
	"math/big"

	"github.com/Theia-Protocol/nft-escrow-sc-near/fixed"
)

// Type enumerates the supported curve variants.
type Type int

const (
	Horizontal Type = iota
	Linear
	Sigmoidal
)

func (t Type) String() string {
	return [...]string{
		"Horizontal",
		"Linear",
		"Sigmoidal",
	}[t]
}

// TypeFromString parses the wire form used by activation blobs.
func TypeFromString(s string) (Type, error) {
	switch s {
	case "Horizontal":
		return Horizontal, nil
	case "Linear":
		return Linear, nil
	case "Sigmoidal":
		return Sigmoidal, nil
	default:
		return 0, fmt.Errorf("unknown curve type %q", s)
	}
}

// arity maps each variant to the exact argument names it requires.
var arity = map[Type][]string{
	Horizontal: {"arg_a"},
	Linear:     {"arg_a", "arg_b"},
	Sigmoidal:  {"arg_a", "arg_b", "arg_c", "arg_d"},
}

// Args returns the argument names required by the variant, in order.
func (t Type) Args() []string {
	return arity[t]
}

// Curve is a validated pricing curve. Coefficients are stored in minor
// units at the curve's scale and are never mutated after construction.
type Curve struct {
	Type Type
	// ArgA..ArgD are the named coefficients; only the first Arity entries
	// are set for a given type.
	ArgA *big.Int
	ArgB *big.Int
	ArgC *big.Int
	ArgD *big.Int

	one *big.Int
}

// Parse validates the argument mapping against the arity table and the
// shape constraints, and returns the constructed curve. The key set of
// args must exactly match the variant's arity — extra or missing keys are
// rejected, which is what makes a curve_type/curve_args mismatch
// impossible to activate.
//
// Shape constraints, per variant:
//
//	Horizontal: a > 0
//	Linear:     a > 0, b >= 0
//	Sigmoidal:  a > 0, b > 0, d > 0
//
// These guarantee PriceAt is strictly positive and monotone non-decreasing
// on the whole non-negative domain.
func Parse(curveType string, args map[string]string, decimals uint8) (*Curve, error) {
	t, err := TypeFromString(curveType)
	if err != nil {
		return nil, err
	}

	want := t.Args()
	if len(args) != len(want) {
		return nil, fmt.Errorf("curve %s takes %d args, got %d", t, len(want), len(args))
	}

	parsed := make([]*big.Int, len(want))
	for i, name := range want {
		raw, ok := args[name]
		if !ok {
			return nil, fmt.Errorf("curve %s is missing %s", t, name)
		}
		v, err := fixed.Parse(raw, decimals)
		if err != nil {
			return nil, fmt.Errorf("curve arg %s: %w", name, err)
		}
		parsed[i] = v
	}

	c := &Curve{Type: t, one: fixed.One(decimals)}
	switch t {
	case Horizontal:
		c.ArgA = parsed[0]
	case Linear:
		c.ArgA, c.ArgB = parsed[0], parsed[1]
	case Sigmoidal:
		c.ArgA, c.ArgB, c.ArgC, c.ArgD = parsed[0], parsed[1], parsed[2], parsed[3]
	}

	if err := c.checkShape(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Curve) checkShape() error {
	if !fixed.IsPositive(c.ArgA) {
		return fmt.Errorf("curve %s requires arg_a > 0", c.Type)
	}
	switch c.Type {
	case Linear:
		if c.ArgB.Sign() < 0 {
			return fmt.Errorf("curve Linear requires arg_b >= 0")
		}
	case Sigmoidal:
		// The logistic term truncates to zero far left of the center, so
		// the floor b is what keeps the price strictly positive there.
		if !fixed.IsPositive(c.ArgB) {
			return fmt.Errorf("curve Sigmoidal requires arg_b > 0")
		}
		if !fixed.IsPositive(c.ArgD) {
			return fmt.Errorf("curve Sigmoidal requires arg_d > 0")
		}
	}
	return nil
}

// PriceAt returns the marginal price at cumulative contributed amount x.
// Pure and total for x >= 0; the result is always > 0 for a curve that
// passed Parse.
func (c *Curve) PriceAt(x *big.Int) *big.Int {
	switch c.Type {
	case Horizontal:
		return new(big.Int).Set(c.ArgA)
	case Linear:
		// price = a + b*x
		return new(big.Int).Add(c.ArgA, fixed.MulDiv(c.ArgB, x, c.one))
	case Sigmoidal:
		return c.sigmoidAt(x)
	}
	panic(fmt.Sprintf("unhandled curve type %d", c.Type))
}

// sigmoidAt evaluates price = a / (1 + exp(-(x-c)/d)) + b in fixed point.
// The logistic term is computed through fixed.ExpNeg on the magnitude of
// the centered argument, using sigma(t) = e^t / (1 + e^t) for t < 0 so the
// exponential argument is never positive.
func (c *Curve) sigmoidAt(x *big.Int) *big.Int {
	t := new(big.Int).Sub(x, c.ArgC)
	t.Mul(t, c.one)
	t.Quo(t, c.ArgD)

	var logistic *big.Int
	if t.Sign() >= 0 {
		// sigma(t) = 1 / (1 + e^-t)
		denom := new(big.Int).Add(c.one, fixed.ExpNeg(t, c.one))
		logistic = fixed.MulDiv(c.ArgA, c.one, denom)
	} else {
		// sigma(t) = e^t / (1 + e^t), t < 0
		et := fixed.ExpNeg(t.Neg(t), c.one)
		denom := new(big.Int).Add(c.one, et)
		logistic = fixed.MulDiv(c.ArgA, et, denom)
	}

	return logistic.Add(logistic, c.ArgB)
}
