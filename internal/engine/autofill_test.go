package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// The S5 seed scenario: a large YES buy on outcome 0 diverts collateral
// into outcome 1, drops its prices, and auto-fills the opt-in YES bid
// resting at 0.60 with positive surplus.
func TestAutoFillTriggeredByCrossImpact(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()

	orders := []types.Order{
		limitOrder("l1", "alice", 1, types.SideYes, true, fixed.AmountFromInt(50), 6_000, true, 1),
		marketOrder("m1", "bob", 0, types.SideYes, true, fixed.AmountFromInt(500), 2),
	}
	fills, events, err := ApplyOrders(st, orders, params, 10)
	require.NoError(t, err)

	require.NotEmpty(t, fillsOfType(fills, types.FillAMM))
	afFills := fillsOfType(fills, types.FillAutoFill)
	require.NotEmpty(t, afFills, "the opt-in bid above the shifted price must auto-fill")
	assert.Equal(t, 1, afFills[0].Outcome)
	assert.Equal(t, types.SideYes, afFills[0].Side)
	assert.Equal(t, fixed.Price(6_000), afFills[0].Price)
	assert.Equal(t, "alice", afFills[0].Buyer)
	assert.Equal(t, types.SystemAutoFillID, afFills[0].Seller)

	var report *types.AutoFillReport
	for _, e := range events {
		if e.Type == types.EventAutoFill {
			r := e.Payload.(types.AutoFillReport)
			report = &r
			break
		}
	}
	require.NotNil(t, report)
	assert.Positive(t, int64(report.Surplus))
	assert.Positive(t, int64(report.Rebates["alice"]))

	// σ=0.5 of the surplus is captured as seigniorage on outcome 1.
	assert.Positive(t, int64(st.Binaries[1].Seigniorage))

	// Alice's resting interest shrank by the auto-filled tokens.
	pool := st.Binaries[1].Pools[PoolKey{Side: types.SideYes, IsBuy: true, Tick: 60, OptIn: true}]
	if pool != nil {
		assert.Less(t, int64(pool.Volume), int64(fixed.AmountFromInt(30)))
	}
	require.NoError(t, st.Validate(params))
}

func TestAutoFillSkipsNonOptInPools(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()

	orders := []types.Order{
		limitOrder("l1", "alice", 1, types.SideYes, true, fixed.AmountFromInt(50), 6_000, false, 1),
		marketOrder("m1", "bob", 0, types.SideYes, true, fixed.AmountFromInt(500), 2),
	}
	fills, _, err := ApplyOrders(st, orders, params, 10)
	require.NoError(t, err)

	assert.Empty(t, fillsOfType(fills, types.FillAutoFill))
	pool := st.Binaries[1].Pools[PoolKey{Side: types.SideYes, IsBuy: true, Tick: 60}]
	require.NotNil(t, pool)
	assert.Equal(t, fixed.AmountFromInt(30), pool.Volume, "non-opt-in escrow is untouched")
}

func TestAutoFillDisabledByToggle(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()
	params.AFEnabled = false

	orders := []types.Order{
		limitOrder("l1", "alice", 1, types.SideYes, true, fixed.AmountFromInt(50), 6_000, true, 1),
		marketOrder("m1", "bob", 0, types.SideYes, true, fixed.AmountFromInt(500), 2),
	}
	fills, _, err := ApplyOrders(st, orders, params, 10)
	require.NoError(t, err)
	assert.Empty(t, fillsOfType(fills, types.FillAutoFill))
}

func TestAutoFillSurplusWithinCaps(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()

	orders := []types.Order{
		limitOrder("l1", "alice", 1, types.SideYes, true, fixed.AmountFromInt(40), 6_000, true, 1),
		limitOrder("l2", "carol", 1, types.SideYes, true, fixed.AmountFromInt(40), 6_500, true, 1),
		limitOrder("l3", "dave", 2, types.SideYes, true, fixed.AmountFromInt(40), 6_000, true, 1),
		marketOrder("m1", "bob", 0, types.SideYes, true, fixed.AmountFromInt(500), 2),
	}
	fills, events, err := ApplyOrders(st, orders, params, 10)
	require.NoError(t, err)

	afFills := fillsOfType(fills, types.FillAutoFill)
	assert.LessOrEqual(t, len(afFills), params.AFMaxPools)

	// Recover the per-binary diversion from the AMM leg to bound the
	// surplus budget: D = ζ·X.
	amm := fillsOfType(fills, types.FillAMM)
	require.Len(t, amm, 1)
	cost, err := amm[0].Price.MulAmount(amm[0].Size)
	require.NoError(t, err)
	diversion, err := fixed.MulDiv(100_000, int64(cost), fixed.AmountScale)
	require.NoError(t, err)
	budget, err := fixed.MulDiv(int64(params.AFMaxSurplus), diversion, fixed.AmountScale)
	require.NoError(t, err)

	perBinary := map[int]fixed.Amount{}
	for _, e := range events {
		if e.Type != types.EventAutoFill {
			continue
		}
		r := e.Payload.(types.AutoFillReport)
		require.Positive(t, int64(r.Surplus), "auto-fill never worsens")
		perBinary[r.Outcome] += r.Surplus
	}
	for outcome, total := range perBinary {
		assert.LessOrEqualf(t, int64(total), budget, "surplus budget exceeded on outcome %d", outcome)
	}
	require.NoError(t, st.Validate(params))
}

func TestAutoFillSellSideOnNegativeDiversion(t *testing.T) {
	t.Parallel()

	st := newScenarioState(t)
	params := scenarioParams()

	// Give bob inventory on outcome 0 first, then an opt-in YES ask
	// below outcome 1's price, which the sell trigger lifts further.
	_, _, err := ApplyOrders(st, []types.Order{
		marketOrder("seed", "bob", 0, types.SideYes, true, fixed.AmountFromInt(400), 1),
	}, params, 1)
	require.NoError(t, err)

	orders := []types.Order{
		limitOrder("l1", "alice", 1, types.SideYes, false, fixed.AmountFromInt(40), 4_300, true, 2),
		marketOrder("m1", "bob", 0, types.SideYes, false, fixed.AmountFromInt(300), 3),
	}
	fills, _, err := ApplyOrders(st, orders, params, 5)
	require.NoError(t, err)

	afFills := fillsOfType(fills, types.FillAutoFill)
	require.NotEmpty(t, afFills, "the opt-in ask below the lifted price must auto-fill")
	assert.Equal(t, types.SystemAutoFillID, afFills[0].Buyer)
	assert.Equal(t, "alice", afFills[0].Seller)
	require.NoError(t, st.Validate(params))
}
