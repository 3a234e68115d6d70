package fixed

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		a, b, d int64
		want    int64
		wantErr error
	}{
		{name: "exact", a: 6, b: 4, d: 3, want: 8},
		{name: "identity-scale", a: 1_500_000, b: AmountScale, d: AmountScale, want: 1_500_000},
		{name: "half-rounds-to-even-down", a: 5, b: 1, d: 2, want: 2},
		{name: "half-rounds-to-even-up", a: 7, b: 1, d: 2, want: 4},
		{name: "above-half-rounds-up", a: 5, b: 1, d: 3, want: 2},
		{name: "below-half-rounds-down", a: 1, b: 1, d: 3, want: 0},
		{name: "negative-half-to-even", a: -5, b: 1, d: 2, want: -2},
		{name: "negative-exact", a: -6, b: 4, d: 3, want: -8},
		{name: "negative-denominator", a: 6, b: 4, d: -3, want: -8},
		{name: "widened-product", a: 3_000_000_000_000, b: 2_000_000, d: AmountScale, want: 6_000_000_000_000},
		{name: "division-by-zero", a: 1, b: 1, d: 0, wantErr: ErrDivisionByZero},
		{name: "overflow", a: 1 << 62, b: 1 << 62, d: 1, wantErr: ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := MulDiv(tt.a, tt.b, tt.d)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	t.Parallel()

	a := AmountFromInt(3)
	b := AmountFromInt(2)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, AmountFromInt(5), sum)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, AmountFromInt(1), diff)

	prod, err := a.Mul(b)
	require.NoError(t, err)
	assert.Equal(t, AmountFromInt(6), prod)

	quot, err := a.Div(b)
	require.NoError(t, err)
	assert.Equal(t, Amount(1_500_000), quot)

	_, err = a.Div(0)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestAddOverflow(t *testing.T) {
	t.Parallel()

	_, err := Amount(1<<63 - 1).Add(1)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Amount(-(1 << 62)).Add(-(1 << 62) - 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestPriceConversions(t *testing.T) {
	t.Parallel()

	p := Price(5500) // 0.55
	assert.Equal(t, Amount(550_000), p.ToAmount())

	a := Amount(550_000)
	got, err := a.ToPrice()
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// 0.55 * 80 = 44
	v, err := p.MulAmount(AmountFromInt(80))
	require.NoError(t, err)
	assert.Equal(t, AmountFromInt(44), v)
}

func TestWireEncoding(t *testing.T) {
	t.Parallel()

	a := Amount(1_500_000)
	assert.Equal(t, "1500000", a.String())
	assert.Equal(t, "1.500000", a.Format())

	parsed, err := ParseAmount("1500000")
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	p := Price(-5500)
	assert.Equal(t, "-5500", p.String())
	assert.Equal(t, "-0.5500", p.Format())

	_, err = ParseAmount("not-a-number")
	require.Error(t, err)
}

func TestIsqrt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   int64
		want int64
	}{
		{0, 0}, {1, 1}, {2, 1}, {3, 1}, {4, 2}, {8, 2}, {9, 3},
		{15, 3}, {16, 4}, {1_000_000, 1000}, {999_999, 999},
	}
	for _, c := range cases {
		got := Isqrt(big.NewInt(c.in))
		assert.Equalf(t, c.want, got.Int64(), "isqrt(%d)", c.in)
	}

	// A product that needs the widened representation.
	n := new(big.Int).Mul(big.NewInt(1<<62), big.NewInt(1<<62))
	assert.Equal(t, big.NewInt(1<<62), Isqrt(n))
}

func TestIsqrtIsFloor(t *testing.T) {
	t.Parallel()

	for i := int64(1); i < 5000; i++ {
		n := big.NewInt(i)
		r := Isqrt(n)
		rr := new(big.Int).Mul(r, r)
		require.LessOrEqual(t, rr.Cmp(n), 0, "sqrt too large for %d", i)
		next := new(big.Int).Add(r, big.NewInt(1))
		next.Mul(next, next)
		require.Greater(t, next.Cmp(n), 0, "sqrt too small for %d", i)
	}
}

func TestSolvePositiveQuadratic(t *testing.T) {
	t.Parallel()

	// x² - 5x + 6 = 0 → roots 3 and 2.
	larger, smaller, err := QuadraticRoots(One, AmountFromInt(-5), AmountFromInt(6))
	require.NoError(t, err)
	assert.Equal(t, AmountFromInt(3), larger)
	assert.Equal(t, AmountFromInt(2), smaller)

	// 2x² - 4x - 6 = 0 → roots 3 and -1.
	larger, smaller, err = QuadraticRoots(AmountFromInt(2), AmountFromInt(-4), AmountFromInt(-6))
	require.NoError(t, err)
	assert.Equal(t, AmountFromInt(3), larger)
	assert.Equal(t, AmountFromInt(-1), smaller)

	x, err := SolvePositiveQuadratic(One, AmountFromInt(-5), AmountFromInt(6))
	require.NoError(t, err)
	assert.Equal(t, AmountFromInt(3), x)

	// x² + 1 = 0 has no real root.
	_, err = SolvePositiveQuadratic(One, 0, One)
	require.ErrorIs(t, err, ErrNegativeDiscriminant)

	// Degenerate leading coefficient.
	_, err = SolvePositiveQuadratic(0, One, One)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestQuadraticFractionalRoot(t *testing.T) {
	t.Parallel()

	// 4x² - 1 = 0 → x = 0.5.
	larger, smaller, err := QuadraticRoots(AmountFromInt(4), 0, AmountFromInt(-1))
	require.NoError(t, err)
	assert.Equal(t, Amount(500_000), larger)
	assert.Equal(t, Amount(-500_000), smaller)
}
