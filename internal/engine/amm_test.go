package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

func tunedForScenario() Tuned {
	p := scenarioParams()
	return p.TunedAt(0, 0, 3)
}

func TestBuyCostSmallTrade(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()
	quote, err := buyCost(st.Binaries[0], types.SideYes, fixed.AmountFromInt(100), tunedForScenario(), params)
	require.NoError(t, err)

	// At p=0.5 a 100-token buy costs a bit over 50 plus the κΔ²=10
	// convexity charge.
	assert.Greater(t, int64(quote.Cost), int64(fixed.AmountFromInt(55)))
	assert.Less(t, int64(quote.Cost), int64(fixed.AmountFromInt(70)))
	assert.False(t, quote.Penalized)

	// Post-trade price moved up but stays far from the bound.
	assert.Greater(t, int64(quote.PostPrice), int64(fixed.Amount(500_000)))
	assert.Less(t, int64(quote.PostPrice), int64(fixed.Amount(600_000)))
}

func TestBuyCostMonotoneInSize(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()
	tu := tunedForScenario()

	var prev fixed.Amount
	for _, size := range []int64{1, 10, 50, 100, 500, 1_000, 5_000, 20_000, 100_000} {
		quote, err := buyCost(st.Binaries[0], types.SideYes, fixed.AmountFromInt(size), tu, params)
		require.NoError(t, err)
		assert.Greaterf(t, int64(quote.Cost), int64(prev), "cost must grow with size %d", size)
		prev = quote.Cost
	}
}

func TestSellProceedsMonotoneInSize(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()
	tu := tunedForScenario()

	var prev fixed.Amount
	for _, size := range []int64{1, 10, 50, 100, 200, 300} {
		quote, err := sellProceeds(st.Binaries[0], types.SideYes, fixed.AmountFromInt(size), tu, params)
		require.NoError(t, err)
		assert.Greaterf(t, int64(quote.Cost), int64(prev), "proceeds must grow with size %d", size)
		prev = quote.Cost
	}

	// Without the convexity charge the property holds over a much wider
	// range.
	tu.Kappa = 0
	prev = 0
	for _, size := range []int64{1, 10, 100, 500, 1_000, 1_500} {
		quote, err := sellProceeds(st.Binaries[0], types.SideYes, fixed.AmountFromInt(size), tu, params)
		require.NoError(t, err)
		assert.Greaterf(t, int64(quote.Cost), int64(prev), "proceeds must grow with size %d", size)
		prev = quote.Cost
	}
}

func TestBuyPenaltyBoundsPrice(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()

	// Convexity off: the κΔ² charge would otherwise flood the pool with
	// collateral and keep the post-trade price below the bound.
	tu := tunedForScenario()
	tu.Kappa = 0
	quote, err := buyCost(st.Binaries[0], types.SideYes, fixed.AmountFromInt(100_000), tu, params)
	require.NoError(t, err)

	assert.True(t, quote.Penalized)
	assert.LessOrEqual(t, int64(quote.PostPrice), int64(params.PMax.ToAmount()))
	// η=2 inflation makes an oversized buy cost far more than face value.
	assert.Greater(t, int64(quote.Cost), int64(fixed.AmountFromInt(100_000)))
}

func TestSellPenaltyBoundsPrice(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()

	// Selling almost the whole circulating side crashes the price
	// through p_min without the penalty. Convexity off so the gross
	// proceeds stay positive at this size.
	tu := tunedForScenario()
	tu.Kappa = 0
	quote, err := sellProceeds(st.Binaries[0], types.SideYes, fixed.AmountFromInt(1_640), tu, params)
	require.NoError(t, err)
	assert.True(t, quote.Penalized)
	assert.GreaterOrEqual(t, int64(quote.PostPrice), int64(params.PMin.ToAmount()))
	assert.Positive(t, int64(quote.Cost))
}

func TestSellProceedsBelowFaceValue(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()
	quote, err := sellProceeds(st.Binaries[0], types.SideYes, fixed.AmountFromInt(100), tunedForScenario(), params)
	require.NoError(t, err)

	// Proceeds for selling at p≈0.5 sit below 0.5 per token: the sale
	// moves the price down and convexity shaves the proceeds.
	assert.Less(t, int64(quote.Cost), int64(fixed.AmountFromInt(50)))
	assert.Positive(t, int64(quote.Cost))
	assert.Less(t, int64(quote.PostPrice), int64(fixed.Amount(500_000)))
}

func TestBuyThenPriceUsesVirtualYes(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()
	tu := tunedForScenario()

	plain, err := buyCost(st.Binaries[0], types.SideYes, fixed.AmountFromInt(100), tu, params)
	require.NoError(t, err)

	st.Binaries[0].VirtualYes = fixed.AmountFromInt(200)
	lifted, err := buyCost(st.Binaries[0], types.SideYes, fixed.AmountFromInt(100), tu, params)
	require.NoError(t, err)

	assert.Greater(t, int64(lifted.Cost), int64(plain.Cost),
		"virtual supply lifts the YES price and with it the cost")
}

func TestBuyCostNoSideIgnoresVirtual(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()
	tu := tunedForScenario()

	plain, err := buyCost(st.Binaries[0], types.SideNo, fixed.AmountFromInt(100), tu, params)
	require.NoError(t, err)

	st.Binaries[0].VirtualYes = fixed.AmountFromInt(200)
	same, err := buyCost(st.Binaries[0], types.SideNo, fixed.AmountFromInt(100), tu, params)
	require.NoError(t, err)

	assert.Equal(t, plain.Cost, same.Cost)
}

func TestWeightsRejectZeroDenominator(t *testing.T) {
	t.Parallel()

	tu := tunedForScenario()
	tu.Mu, tu.Nu = 0, 0
	_, _, err := weights(tu)
	require.ErrorIs(t, err, fixed.ErrDivisionByZero)
}
