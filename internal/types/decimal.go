// Decimal helpers adapted from tinySQL's internal/storage/decimal.go,
// retargeted from SQL-engine arithmetic to the bounded-precision
// fixed-point decimal carried by Layout/EncodedValues (spec section 4.1).
package types

import (
	"fmt"
	"math/big"
)

// DecimalFromRat converts a *big.Rat into an unscaled-integer/scale pair
// at the requested scale, rounding toward zero. Returns false if the
// value does not fit in an int64 at that scale.
func DecimalFromRat(r *big.Rat, scale uint8) (int64, bool) {
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(pow10(scale)))
	num := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	if !num.IsInt64() {
		return 0, false
	}
	return num.Int64(), true
}

// DecimalToRat converts an unscaled-integer/scale pair back into a
// *big.Rat.
func DecimalToRat(unscaled int64, scale uint8) *big.Rat {
	r := new(big.Rat).SetInt64(unscaled)
	return r.Quo(r, new(big.Rat).SetInt(pow10(scale)))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// DecimalToString renders an unscaled-integer/scale pair as a plain
// decimal string, e.g. (12345, 2) -> "123.45".
func DecimalToString(unscaled int64, scale uint8) string {
	return DecimalToRat(unscaled, scale).FloatString(int(scale))
}

// DecimalFromString parses a plain decimal string at the given scale.
func DecimalFromString(s string, scale uint8) (int64, error) {
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return 0, fmt.Errorf("invalid decimal literal %q", s)
	}
	unscaled, ok := DecimalFromRat(r, scale)
	if !ok {
		return 0, fmt.Errorf("decimal literal %q overflows int64 at scale %d", s, scale)
	}
	return unscaled, nil
}
