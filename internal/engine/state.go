package engine

import (
	"fmt"
	"sort"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// SchemaVersion is the wire version of the serialized state blob.
const SchemaVersion = 1

// PoolKey identifies one limit pool: outcome side, direction, price
// tick, and whether the pool opted into auto-filling. Opt-in rides in
// the key so non-opt-in liquidity is never auto-filled.
type PoolKey struct {
	Side  types.Side
	IsBuy bool
	Tick  int64
	OptIn bool
}

// Pool holds resting limit liquidity at one tick. Shares are kept in the
// pool's committed unit — collateral for BUY pools, tokens for SELL
// pools — so Volume == Σ shares holds exactly at all times.
type Pool struct {
	Volume fixed.Amount
	Shares map[string]fixed.Amount
}

// Binary is the per-outcome sub-market state.
type Binary struct {
	Outcome     int
	Active      bool
	V           fixed.Amount
	Subsidy     fixed.Amount
	L           fixed.Amount
	QYes        fixed.Amount
	QNo         fixed.Amount
	VirtualYes  fixed.Amount
	Seigniorage fixed.Amount
	Pools       map[PoolKey]*Pool
}

// QYesEff is the pricing supply of the YES side: circulating plus the
// renormalization addend.
func (b *Binary) QYesEff() fixed.Amount { return b.QYes + b.VirtualYes }

// qSide returns the pricing supply for a side.
func (b *Binary) qSide(side types.Side) fixed.Amount {
	if side == types.SideYes {
		return b.QYesEff()
	}
	return b.QNo
}

// priceFrac returns q_side/L as an amount-scale fraction.
func (b *Binary) priceFrac(side types.Side) (fixed.Amount, error) {
	return b.qSide(side).Div(b.L)
}

// EngineState is the complete engine state. The engine is its exclusive
// owner for the duration of a call; hosts move it across the wire via
// Serialize/Deserialize.
type EngineState struct {
	NOutcomes      int
	Binaries       []*Binary
	PreSumYes      fixed.Price
	SessionStartMs int64
	RoundStartMs   int64
	RoundsDone     int
	Seq            int64
}

// Init creates the state for a fresh session: each binary carries the
// full Z/N subsidy, the virtual seed q0 on both sides, and no resting
// liquidity.
func Init(params EngineParams, sessionStartMs int64) (*EngineState, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	st := &EngineState{
		NOutcomes:      params.NOutcomes,
		Binaries:       make([]*Binary, params.NOutcomes),
		SessionStartMs: sessionStartMs,
		RoundStartMs:   sessionStartMs,
	}
	subsidy := fixed.Amount(int64(params.Z) / int64(params.NOutcomes))
	for i := range st.Binaries {
		st.Binaries[i] = &Binary{
			Outcome: i,
			Active:  true,
			Subsidy: subsidy,
			L:       subsidy,
			QYes:    params.Q0,
			QNo:     params.Q0,
			Pools:   map[PoolKey]*Pool{},
		}
	}
	if err := st.Validate(params); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return st, nil
}

// Clone deep-copies the state. ApplyOrders and TriggerResolution work on
// clones so fatal errors leave the caller's state untouched.
func (st *EngineState) Clone() *EngineState {
	out := *st
	out.Binaries = make([]*Binary, len(st.Binaries))
	for i, b := range st.Binaries {
		nb := *b
		nb.Pools = make(map[PoolKey]*Pool, len(b.Pools))
		for k, p := range b.Pools {
			np := &Pool{Volume: p.Volume, Shares: make(map[string]fixed.Amount, len(p.Shares))}
			for u, s := range p.Shares {
				np.Shares[u] = s
			}
			nb.Pools[k] = np
		}
		out.Binaries[i] = &nb
	}
	return &out
}

// NActive counts binaries that have not been eliminated.
func (st *EngineState) NActive() int {
	n := 0
	for _, b := range st.Binaries {
		if b.Active {
			n++
		}
	}
	return n
}

// recomputeSubsidy re-derives subsidy and L for one binary from V:
// subsidy = max(0, Z/N - gamma*V).
func (st *EngineState) recomputeSubsidy(b *Binary, params EngineParams) error {
	base := fixed.Amount(int64(params.Z) / int64(st.NOutcomes))
	phased, err := params.Gamma.Mul(b.V)
	if err != nil {
		return err
	}
	sub := base - phased
	if sub < 0 {
		sub = 0
	}
	if sub > base {
		// Net-sold binaries (V < 0) never earn back more than the
		// initial Z/N share, keeping the total maker risk bounded by Z.
		sub = base
	}
	b.Subsidy = sub
	b.L = b.V + sub
	return nil
}

// sortedPoolKeys returns the binary's pool keys in a deterministic
// order: YES before NO, BUY before SELL, tick ascending, opt-in false
// before true.
func (b *Binary) sortedPoolKeys() []PoolKey {
	keys := make([]PoolKey, 0, len(b.Pools))
	for k := range b.Pools {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, c := keys[i], keys[j]
		if a.Side != c.Side {
			return a.Side == types.SideYes
		}
		if a.IsBuy != c.IsBuy {
			return a.IsBuy
		}
		if a.Tick != c.Tick {
			return a.Tick < c.Tick
		}
		return !a.OptIn && c.OptIn
	})
	return keys
}

// poolKeysWhere filters and sorts pool keys for one side/direction.
// Ascending tick when asc, else descending; opt-in false sorts first at
// equal ticks.
func (b *Binary) poolKeysWhere(side types.Side, isBuy bool, asc bool) []PoolKey {
	keys := make([]PoolKey, 0, 4)
	for k := range b.Pools {
		if k.Side == side && k.IsBuy == isBuy {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, c := keys[i], keys[j]
		if a.Tick != c.Tick {
			if asc {
				return a.Tick < c.Tick
			}
			return a.Tick > c.Tick
		}
		return !a.OptIn && c.OptIn
	})
	return keys
}

// Validate checks every state invariant the pipeline relies on: pool
// solvency and price bounds per binary, exact pool bookkeeping, and the
// bounded total subsidy. A failure here is fatal to the current call.
func (st *EngineState) Validate(params EngineParams) error {
	if len(st.Binaries) != st.NOutcomes {
		return &types.InvariantViolation{Detail: fmt.Sprintf("binary count %d != n_outcomes %d", len(st.Binaries), st.NOutcomes)}
	}
	pmaxA := params.PMax.ToAmount()
	var subsidySum fixed.Amount
	for _, b := range st.Binaries {
		if !b.Active {
			continue
		}
		if b.L <= 0 {
			return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d: L %s not positive", b.Outcome, b.L)}
		}
		if b.VirtualYes < 0 && params.VCEnabled {
			return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d: virtual_yes %s negative", b.Outcome, b.VirtualYes)}
		}
		twoL := b.L * 2
		if b.QYesEff()+b.QNo >= twoL {
			return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d: q_yes_eff+q_no %s >= 2L %s", b.Outcome, b.QYesEff()+b.QNo, twoL)}
		}
		for _, side := range []types.Side{types.SideYes, types.SideNo} {
			p, err := b.priceFrac(side)
			if err != nil {
				return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d: price: %v", b.Outcome, err)}
			}
			if p <= 0 || p > pmaxA {
				return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d: p_%s %s outside (0, p_max]", b.Outcome, side, p)}
			}
		}
		for k, pool := range b.Pools {
			if pool.Volume < 0 {
				return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d pool %v: negative volume", b.Outcome, k)}
			}
			var sum fixed.Amount
			for _, s := range pool.Shares {
				if s < 0 {
					return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d pool %v: negative share", b.Outcome, k)}
				}
				sum += s
			}
			if sum != pool.Volume {
				return &types.InvariantViolation{Detail: fmt.Sprintf("binary %d pool %v: volume %s != share sum %s", b.Outcome, k, pool.Volume, sum)}
			}
		}
		subsidySum += b.Subsidy
	}
	if subsidySum > params.Z {
		return &types.InvariantViolation{Detail: fmt.Sprintf("subsidy sum %s exceeds Z %s", subsidySum, params.Z)}
	}
	return nil
}

// PriceYes reports the YES price of a binary at price scale.
func (st *EngineState) PriceYes(i int) (fixed.Price, error) {
	frac, err := st.Binaries[i].priceFrac(types.SideYes)
	if err != nil {
		return 0, err
	}
	return frac.ToPrice()
}

// PriceNo reports the NO price of a binary at price scale.
func (st *EngineState) PriceNo(i int) (fixed.Price, error) {
	frac, err := st.Binaries[i].priceFrac(types.SideNo)
	if err != nil {
		return 0, err
	}
	return frac.ToPrice()
}
