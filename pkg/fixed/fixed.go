// Package fixed implements the scaled-integer arithmetic used by the
// market engine. Collateral balances and token quantities are Amounts
// carrying six decimal places; prices carry four. All operations are
// exact at the declared scales with half-to-even rounding on division;
// intermediate products are widened to 128 bits so q·L sized products
// cannot overflow.
package fixed

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
)

// Scales for the two fixed-point domains.
const (
	AmountScale int64 = 1_000_000 // collateral and token quantities, 6 dp
	PriceScale  int64 = 10_000    // prices, 4 dp

	// priceToAmount converts between the two scales.
	priceToAmount = AmountScale / PriceScale
)

// Arithmetic failure sentinels. Callers wrap these into the engine's
// NumericError taxonomy.
var (
	ErrDivisionByZero       = errors.New("fixed: division by zero")
	ErrOverflow             = errors.New("fixed: overflow")
	ErrNegativeDiscriminant = errors.New("fixed: negative discriminant")
)

// Amount is a collateral or token quantity scaled by AmountScale.
type Amount int64

// Price is a price scaled by PriceScale.
type Price int64

// One is 1.0 at amount scale.
const One = Amount(AmountScale)

// AmountFromInt returns n whole units as an Amount.
func AmountFromInt(n int64) Amount { return Amount(n * AmountScale) }

// PriceFromFraction returns num/den as a Price, rounded half-to-even.
func PriceFromFraction(num, den int64) (Price, error) {
	v, err := MulDiv(num, PriceScale, den)
	if err != nil {
		return 0, err
	}
	return Price(v), nil
}

// ParseAmount parses the wire form of an Amount: the base-10 string of
// the scaled integer.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount(v), nil
}

// ParsePrice parses the wire form of a Price.
func ParsePrice(s string) (Price, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return Price(v), nil
}

// String returns the wire encoding: the scaled integer in base 10.
func (a Amount) String() string { return strconv.FormatInt(int64(a), 10) }

// String returns the wire encoding: the scaled integer in base 10.
func (p Price) String() string { return strconv.FormatInt(int64(p), 10) }

// Format renders the amount as a human decimal with six places.
func (a Amount) Format() string {
	return formatScaled(int64(a), 6)
}

// Format renders the price as a human decimal with four places.
func (p Price) Format() string {
	return formatScaled(int64(p), 4)
}

func formatScaled(v int64, places int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	pow := int64(1)
	for i := 0; i < places; i++ {
		pow *= 10
	}
	s := strconv.FormatInt(v/pow, 10) + "." + fmt.Sprintf("%0*d", places, v%pow)
	if neg {
		return "-" + s
	}
	return s
}

// Add returns a+b, failing on 64-bit overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrOverflow
	}
	return s, nil
}

// Sub returns a-b, failing on 64-bit overflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	return a.Add(-b)
}

// Mul returns a·b at amount scale, rounded half-to-even.
func (a Amount) Mul(b Amount) (Amount, error) {
	v, err := MulDiv(int64(a), int64(b), AmountScale)
	return Amount(v), err
}

// Div returns a/b at amount scale, rounded half-to-even.
func (a Amount) Div(b Amount) (Amount, error) {
	v, err := MulDiv(int64(a), AmountScale, int64(b))
	return Amount(v), err
}

// ToPrice narrows an amount-scale fraction to price scale, half-to-even.
func (a Amount) ToPrice() (Price, error) {
	v, err := MulDiv(int64(a), 1, priceToAmount)
	return Price(v), err
}

// ToAmount widens a price to amount scale. Exact.
func (p Price) ToAmount() Amount { return Amount(int64(p) * priceToAmount) }

// MulAmount returns p·a at amount scale, rounded half-to-even.
func (p Price) MulAmount(a Amount) (Amount, error) {
	v, err := MulDiv(int64(p), int64(a), PriceScale)
	return Amount(v), err
}

// MulDiv computes (a·b)/den with a 128-bit intermediate product and
// half-to-even rounding. Fails with ErrDivisionByZero when den is zero
// and ErrOverflow when the quotient does not fit in 64 bits.
func MulDiv(a, b, den int64) (int64, error) {
	if den == 0 {
		return 0, ErrDivisionByZero
	}
	neg := false
	ua, ub, ud := uint64(a), uint64(b), uint64(den)
	if a < 0 {
		ua = uint64(-a)
		neg = !neg
	}
	if b < 0 {
		ub = uint64(-b)
		neg = !neg
	}
	if den < 0 {
		ud = uint64(-den)
		neg = !neg
	}
	hi, lo := bits.Mul64(ua, ub)
	if hi >= ud {
		return 0, ErrOverflow
	}
	q, r := bits.Div64(hi, lo, ud)

	// Half-to-even on the magnitude; .5 cases map symmetrically under
	// negation so this matches half-to-even on the real value.
	twice := r << 1
	if twice > ud || (twice == ud && q&1 == 1) {
		q++
	}
	if q > uint64(1)<<63-1 {
		if neg && q == uint64(1)<<63 {
			return -1 << 63, nil
		}
		return 0, ErrOverflow
	}
	if neg {
		return -int64(q), nil
	}
	return int64(q), nil
}

// DivHalfEven divides n by d at unit scale with half-to-even rounding.
func DivHalfEven(n, d int64) (int64, error) {
	return MulDiv(n, 1, d)
}

// MulDivFloor computes floor((a·b)/den) with a 128-bit intermediate,
// returning the quotient and remainder. All operands must be
// non-negative; pro-rata allocation uses the remainders for
// largest-remainder rounding.
func MulDivFloor(a, b, den int64) (q, r int64, err error) {
	if den <= 0 {
		return 0, 0, ErrDivisionByZero
	}
	if a < 0 || b < 0 {
		return 0, 0, ErrOverflow
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(den) {
		return 0, 0, ErrOverflow
	}
	uq, ur := bits.Div64(hi, lo, uint64(den))
	if uq > uint64(1)<<63-1 {
		return 0, 0, ErrOverflow
	}
	return int64(uq), int64(ur), nil
}
