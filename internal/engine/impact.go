package engine

import (
	"github.com/oddslab/marketcore/pkg/fixed"
)

// applyImpact distributes the collateral of a committed AMM leg on
// binary i: the local retention f_i·X stays in V_i, and ζ·X is diverted
// into every other active binary, in ascending outcome order. Subsidies
// and effective pools are re-derived afterwards. sign is +1 for buys,
// -1 for sells.
//
// It returns the per-binary diversion D_j so the caller can drive
// auto-filling.
func (st *EngineState) applyImpact(i int, sign int64, cost fixed.Amount, tu Tuned, params EngineParams) (map[int]fixed.Amount, error) {
	c := &calc{}
	own := c.md(tu.FLocal, cost, fixed.One)
	div := c.md(tu.Zeta, cost, fixed.One)
	if c.err != nil {
		return nil, numErr("impact", c.err)
	}

	diversions := make(map[int]fixed.Amount, len(st.Binaries))
	for _, b := range st.Binaries {
		if !b.Active {
			continue
		}
		if b.Outcome == i {
			b.V += fixed.Amount(sign) * own
		} else {
			d := fixed.Amount(sign) * div
			b.V += d
			diversions[b.Outcome] = d
		}
		if err := st.recomputeSubsidy(b, params); err != nil {
			return nil, numErr("impact", err)
		}
	}
	return diversions, nil
}
