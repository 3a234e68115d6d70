package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// scenarioParams are the common parameters of the seed scenarios:
// N=3, Z=10000, initial price 0.5 on every side, all toggles on.
func scenarioParams() EngineParams {
	return EngineParams{
		NOutcomes: 3,
		Z:         fixed.AmountFromInt(10_000),
		Gamma:     100,                          // 0.0001
		Q0:        fixed.Amount(1_666_666_666),  // 0.5 * Z/N
		Fee:       10_000,                       // 0.01
		PMax:      9_900,                        // 0.99
		PMin:      100,                          // 0.01
		Eta:       2,
		TickSize:  100, // 0.01

		CMEnabled:  true,
		AFEnabled:  true,
		MREnabled:  true,
		VCEnabled:  true,
		VirtualCap: 0,

		FMatch: 5_000, // 0.005

		Sigma:        500_000, // 0.5
		AFCapFrac:    500_000, // 0.5
		AFMaxPools:   8,
		AFMaxSurplus: 250_000, // 0.25

		ResSchedule: []int{1, 1},
		Interp:      InterpContinue,

		Zeta:  Ramp{Start: 100_000, End: 100_000}, // 0.1
		Mu:    Ramp{Start: fixed.One, End: fixed.One},
		Nu:    Ramp{Start: fixed.One, End: fixed.One},
		Kappa: Ramp{Start: 1_000, End: 1_000}, // 0.001

		InterpDurationMs: 0,
	}
}

func newScenarioState(t *testing.T) *EngineState {
	t.Helper()
	st, err := Init(scenarioParams(), 0)
	require.NoError(t, err)
	return st
}

func marketOrder(id, user string, outcome int, side types.Side, isBuy bool, size fixed.Amount, ts int64) types.Order {
	return types.Order{
		OrderID: id,
		UserID:  user,
		Outcome: outcome,
		Side:    side,
		Kind:    types.KindMarket,
		IsBuy:   isBuy,
		Size:    size,
		TsMs:    ts,
	}
}

func limitOrder(id, user string, outcome int, side types.Side, isBuy bool, size fixed.Amount, price fixed.Price, optIn bool, ts int64) types.Order {
	return types.Order{
		OrderID:    id,
		UserID:     user,
		Outcome:    outcome,
		Side:       side,
		Kind:       types.KindLimit,
		IsBuy:      isBuy,
		Size:       size,
		LimitPrice: price,
		AfOptIn:    optIn,
		TsMs:       ts,
	}
}

// fillsOfType filters fills by venue.
func fillsOfType(fills []types.Fill, kind types.FillType) []types.Fill {
	var out []types.Fill
	for _, f := range fills {
		if f.Type == kind {
			out = append(out, f)
		}
	}
	return out
}

// totalV sums user collateral across all binaries.
func totalV(st *EngineState) fixed.Amount {
	var sum fixed.Amount
	for _, b := range st.Binaries {
		sum += b.V
	}
	return sum
}
