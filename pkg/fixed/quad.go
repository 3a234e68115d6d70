package fixed

import (
	"math/big"
)

// sqrtIterations bounds the Newton loop. 64-bit seeded Newton converges
// quadratically, so this is far above what a 256-bit discriminant needs.
const sqrtIterations = 128

// Isqrt returns the floor square root of n using integer Newton
// iteration seeded from the nearest power of two. n must be
// non-negative.
func Isqrt(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		return new(big.Int)
	}
	if n.Cmp(big.NewInt(3)) <= 0 {
		return big.NewInt(1)
	}
	x := new(big.Int).Lsh(big.NewInt(1), uint(n.BitLen()+1)/2)
	t := new(big.Int)
	for i := 0; i < sqrtIterations; i++ {
		// t = (x + n/x) / 2
		t.Quo(n, x)
		t.Add(t, x)
		t.Rsh(t, 1)
		if t.Cmp(x) >= 0 {
			// Bit-accurate convergence: the sequence is strictly
			// decreasing until it reaches floor(sqrt(n)).
			return x
		}
		x.Set(t)
	}
	return x
}

// QuadraticRoots returns the larger and smaller real roots of
// a·x² + b·x + c = 0 at amount scale. The coefficients are amount-scale
// fixed-point values; the common scale factor cancels, so the roots are
// computed directly on the scaled integers and rescaled once. Requires
// a > 0. Fails with ErrNegativeDiscriminant when the discriminant is
// negative.
func QuadraticRoots(a, b, c Amount) (larger, smaller Amount, err error) {
	if a == 0 {
		return 0, 0, ErrDivisionByZero
	}
	ba := big.NewInt(int64(a))
	bb := big.NewInt(int64(b))
	bc := big.NewInt(int64(c))

	// disc = b² - 4ac
	disc := new(big.Int).Mul(bb, bb)
	fourAC := new(big.Int).Mul(ba, bc)
	fourAC.Lsh(fourAC, 2)
	disc.Sub(disc, fourAC)
	if disc.Sign() < 0 {
		return 0, 0, ErrNegativeDiscriminant
	}
	root := Isqrt(disc)

	scale := big.NewInt(AmountScale)
	den := new(big.Int).Lsh(ba, 1)

	negB := new(big.Int).Neg(bb)
	hi := new(big.Int).Add(negB, root)
	lo := new(big.Int).Sub(negB, root)

	larger, err = ratioToAmount(hi.Mul(hi, scale), den)
	if err != nil {
		return 0, 0, err
	}
	smaller, err = ratioToAmount(lo.Mul(lo, scale), den)
	if err != nil {
		return 0, 0, err
	}
	return larger, smaller, nil
}

// SolvePositiveQuadratic returns the larger root of a·x² + b·x + c = 0.
func SolvePositiveQuadratic(a, b, c Amount) (Amount, error) {
	larger, _, err := QuadraticRoots(a, b, c)
	return larger, err
}

// ratioToAmount reduces num/den to an Amount with half-to-even rounding.
func ratioToAmount(num, den *big.Int) (Amount, error) {
	if den.Sign() == 0 {
		return 0, ErrDivisionByZero
	}
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		// Work on magnitudes; half-to-even is symmetric under negation.
		neg := (num.Sign() < 0) != (den.Sign() < 0)
		r.Abs(r)
		d := new(big.Int).Abs(den)
		twice := new(big.Int).Lsh(r, 1)
		cmp := twice.Cmp(d)
		odd := q.Bit(0) == 1
		if cmp > 0 || (cmp == 0 && odd) {
			if neg {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
	}
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return Amount(q.Int64()), nil
}
