package engine

import (
	"fmt"
	"sort"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// PositionsLookup returns user token holdings for one (outcome, side) at
// the instant of the call. Supplied by the host at resolution time; it
// must be pure.
type PositionsLookup func(outcome int, side types.Side) map[string]fixed.Amount

// Resolution selects the resolution mode: Final pays the winning
// outcome; otherwise the listed outcomes are eliminated in an
// intermediate round.
type Resolution struct {
	Final     bool
	Winner    int
	Eliminate []int
}

// TriggerResolution runs one resolution round against the state. For an
// intermediate round it pays NO holders of each eliminated outcome,
// redistributes the freed liquidity equally across the survivors, and
// renormalizes YES prices through the virtual supply so the active YES
// price sum is preserved. For the final round it cancels every open
// limit, pays face value, and retires the session. Any failure rolls
// the state back to entry.
func TriggerResolution(state *EngineState, params EngineParams, mode Resolution, lookup PositionsLookup, tNowMs int64) (map[string]fixed.Amount, []types.Event, error) {
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	if err := state.Validate(params); err != nil {
		return nil, nil, err
	}
	work := state.Clone()
	work.Seq++

	var payouts map[string]fixed.Amount
	var events []types.Event
	var err error
	if mode.Final {
		payouts, events, err = resolveFinal(work, mode.Winner, lookup, tNowMs)
	} else {
		payouts, events, err = resolveIntermediate(work, params, mode.Eliminate, lookup, tNowMs)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := work.Validate(params); err != nil {
		return nil, nil, err
	}
	resolutionRoundsTotal.Inc()
	*state = *work
	return payouts, events, nil
}

// drainPools cancels every open pool of a binary, returning the BUY
// collateral refunds per user. SELL escrow is token-denominated and
// simply unlocks; the host never moved those holdings.
func drainPools(b *Binary) map[string]fixed.Amount {
	refunds := map[string]fixed.Amount{}
	for _, key := range b.sortedPoolKeys() {
		pool := b.Pools[key]
		if key.IsBuy {
			for _, u := range sortedUsers(pool) {
				refunds[u] += pool.Shares[u]
			}
		}
		delete(b.Pools, key)
	}
	return refunds
}

func resolveIntermediate(work *EngineState, params EngineParams, eliminate []int, lookup PositionsLookup, tNowMs int64) (map[string]fixed.Amount, []types.Event, error) {
	if !params.MREnabled {
		return nil, nil, &types.ResolutionError{Detail: "multi-resolution disabled"}
	}
	if len(eliminate) == 0 {
		return nil, nil, &types.ResolutionError{Detail: "empty elimination list"}
	}
	if work.RoundsDone >= len(params.ResSchedule) {
		return nil, nil, &types.ResolutionError{Detail: "no rounds left in schedule"}
	}
	if len(eliminate) != params.ResSchedule[work.RoundsDone] {
		return nil, nil, &types.ResolutionError{Detail: fmt.Sprintf(
			"round %d eliminates %d outcomes, schedule says %d",
			work.RoundsDone, len(eliminate), params.ResSchedule[work.RoundsDone])}
	}

	ks := make([]int, len(eliminate))
	copy(ks, eliminate)
	sort.Ints(ks)

	// Snapshot the active YES price sum once, before any mutation.
	preSum, err := activeYesSum(work)
	if err != nil {
		return nil, nil, err
	}
	preSumP, err := preSum.ToPrice()
	if err != nil {
		return nil, nil, numErr("resolution", err)
	}
	work.PreSumYes = preSumP

	payouts := map[string]fixed.Amount{}
	var events []types.Event
	var totalFreed fixed.Amount
	for _, k := range ks {
		if k < 0 || k >= len(work.Binaries) {
			return nil, nil, &types.ResolutionError{Detail: fmt.Sprintf("unknown outcome %d", k)}
		}
		b := work.Binaries[k]
		if !b.Active {
			return nil, nil, &types.ResolutionError{Detail: fmt.Sprintf("outcome %d already eliminated", k)}
		}

		var paid fixed.Amount
		roundPayouts := map[string]fixed.Amount{}
		holders := lookup(k, types.SideNo)
		for _, u := range sortedKeys(holders) {
			tokens := holders[u]
			if tokens <= 0 {
				continue
			}
			paid += tokens
			roundPayouts[u] += tokens
			payouts[u] += tokens
		}
		if paid > b.L {
			return nil, nil, &types.ResolutionError{Detail: fmt.Sprintf(
				"outcome %d: NO payout %s exceeds pool %s", k, paid, b.L)}
		}
		refunds := drainPools(b)
		b.V -= paid
		freed := b.L - paid
		b.Active = false
		totalFreed += freed

		events = append(events, types.Event{Type: types.EventElimination, TsMs: tNowMs, Payload: types.EliminationReport{
			Outcome: k,
			PaidNo:  paid,
			Freed:   freed,
			Payouts: roundPayouts,
			Refunds: refunds,
		}})
	}

	// Split the freed liquidity equally across survivors, spreading the
	// rounding dust over the lowest outcome indexes.
	nAfter := work.NActive()
	if nAfter == 0 {
		return nil, nil, &types.ResolutionError{Detail: "no active outcomes remain after round"}
	}
	share := totalFreed / fixed.Amount(nAfter)
	dust := totalFreed - share*fixed.Amount(nAfter)
	for _, b := range work.Binaries {
		if !b.Active {
			continue
		}
		b.V += share
		if dust > 0 {
			b.V++
			dust--
		}
		if err := work.recomputeSubsidy(b, params); err != nil {
			return nil, nil, numErr("resolution", err)
		}
	}

	capped, postSum, err := renormalizeYes(work, params, preSum)
	if err != nil {
		return nil, nil, err
	}
	postSumP, err := postSum.ToPrice()
	if err != nil {
		return nil, nil, numErr("resolution", err)
	}
	events = append(events, types.Event{Type: types.EventRoundSummary, TsMs: tNowMs, Payload: types.RoundSummary{
		Eliminated: ks,
		TotalFreed: totalFreed,
		PreSumYes:  preSumP,
		PostSumYes: postSumP,
		CappedYes:  capped,
	}})

	// The snapshot is consumed by renormalization.
	work.PreSumYes = 0
	work.RoundsDone++
	work.RoundStartMs = tNowMs
	return payouts, events, nil
}

// activeYesSum sums p_yes over active binaries at amount scale.
func activeYesSum(st *EngineState) (fixed.Amount, error) {
	var sum fixed.Amount
	for _, b := range st.Binaries {
		if !b.Active {
			continue
		}
		p, err := b.priceFrac(types.SideYes)
		if err != nil {
			return 0, numErr("resolution", err)
		}
		sum += p
	}
	return sum, nil
}

// renormalizeYes sets virtual_yes on every surviving binary so the YES
// price sum returns to the pre-round snapshot: the freed liquidity
// raised every L while q_yes_eff stood still, so the post sum is low and
// each price scales by preSum/postSum. The virtual-cap clamp may leave
// the realized sum short; capped outcomes are reported.
func renormalizeYes(work *EngineState, params EngineParams, preSum fixed.Amount) (capped []int, realized fixed.Amount, err error) {
	postSum, err := activeYesSum(work)
	if err != nil {
		return nil, 0, err
	}
	if postSum <= 0 {
		return nil, 0, numErr("resolution", fixed.ErrDivisionByZero)
	}
	c := &calc{}
	pmax := params.PMax.ToAmount()
	for _, b := range work.Binaries {
		if !b.Active {
			continue
		}
		p, perr := b.priceFrac(types.SideYes)
		if perr != nil {
			return nil, 0, numErr("resolution", perr)
		}
		target := c.md(p, preSum, postSum)
		wasCapped := false
		if target > pmax {
			// Solvency outranks sum preservation: the renormalized
			// price saturates at the bound.
			target = pmax
			wasCapped = true
		}
		virtual := c.md(target, b.L, fixed.One) - b.QYes
		if c.err != nil {
			return nil, 0, numErr("resolution", c.err)
		}
		if params.VCEnabled {
			was := virtual
			if virtual < 0 {
				virtual = 0
			}
			if params.VirtualCap > 0 && virtual > params.VirtualCap {
				virtual = params.VirtualCap
			}
			wasCapped = wasCapped || virtual != was
		}
		if wasCapped {
			capped = append(capped, b.Outcome)
		}
		b.VirtualYes = virtual
	}
	realized, err = activeYesSum(work)
	if err != nil {
		return nil, 0, err
	}
	return capped, realized, nil
}

func resolveFinal(work *EngineState, winner int, lookup PositionsLookup, tNowMs int64) (map[string]fixed.Amount, []types.Event, error) {
	if winner < 0 || winner >= len(work.Binaries) {
		return nil, nil, &types.ResolutionError{Detail: fmt.Sprintf("unknown winner %d", winner)}
	}
	if !work.Binaries[winner].Active {
		return nil, nil, &types.ResolutionError{Detail: fmt.Sprintf("winner %d already eliminated", winner)}
	}

	payouts := map[string]fixed.Amount{}

	// Open limits die first: BUY collateral refunds, SELL tokens unlock.
	refunds := map[string]fixed.Amount{}
	for _, b := range work.Binaries {
		for u, refund := range drainPools(b) {
			refunds[u] += refund
		}
	}

	// YES of the winner pays face value; NO of every other still-active
	// outcome pays face value (earlier rounds already settled the rest).
	winners := lookup(winner, types.SideYes)
	for _, u := range sortedKeys(winners) {
		if winners[u] > 0 {
			payouts[u] += winners[u]
		}
	}
	for _, b := range work.Binaries {
		if !b.Active || b.Outcome == winner {
			continue
		}
		holders := lookup(b.Outcome, types.SideNo)
		for _, u := range sortedKeys(holders) {
			if holders[u] > 0 {
				payouts[u] += holders[u]
			}
		}
	}

	for _, b := range work.Binaries {
		b.Active = false
		b.V = 0
		b.Subsidy = 0
		b.L = 0
		b.QYes = 0
		b.QNo = 0
		b.VirtualYes = 0
	}

	events := []types.Event{{Type: types.EventResolutionFinal, TsMs: tNowMs, Payload: types.ResolutionFinal{
		Winner:  winner,
		Payouts: payouts,
		Refunds: refunds,
	}}}
	return payouts, events, nil
}

// sortedKeys orders a payout map deterministically.
func sortedKeys(m map[string]fixed.Amount) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
