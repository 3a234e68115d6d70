package engine

import (
	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// autoFillSearchIterations bounds the bisection for the largest delta
// that keeps the post-trade price on the feasible side of the tick. The
// predicate is monotone in delta, so convergence is guaranteed.
const autoFillSearchIterations = 20

// autoFill opportunistically executes opt-in limit pools against the
// AMM after a cross-impact diversion. A buy on the trigger binary pushes
// every other price down, exposing opt-in BUY pools bidding above the
// new price: the pool pays its tick, the AMM mints for less, and the
// surplus is split σ to the system (seigniorage) and 1−σ back to the
// pool pro-rata. A sell trigger mirrors this with opt-in SELL pools
// asking below the new price.
func (bt *batch) autoFill(trigger int, sign int64, diversions map[int]fixed.Amount) error {
	if !bt.params.AFEnabled || bt.tuned.Zeta <= 0 {
		return nil
	}
	poolsFilled := 0
	for _, b := range bt.state.Binaries {
		if !b.Active || b.Outcome == trigger {
			continue
		}
		d := diversions[b.Outcome]
		if d == 0 {
			continue
		}
		if d < 0 {
			d = -d
		}
		c := &calc{}
		surplusCap := c.md(bt.params.AFMaxSurplus, d, fixed.One)
		perPoolCollateral := c.md(bt.params.AFCapFrac, d, fixed.One)
		if c.err != nil {
			return numErr("auto-fill", c.err)
		}
		var surplusUsed fixed.Amount

		for _, side := range []types.Side{types.SideYes, types.SideNo} {
			if poolsFilled >= bt.params.AFMaxPools || surplusUsed >= surplusCap {
				break
			}
			stop, err := bt.autoFillSide(b, side, sign, perPoolCollateral, surplusCap, &surplusUsed, &poolsFilled)
			if err != nil {
				return err
			}
			if stop {
				break
			}
		}
		if poolsFilled >= bt.params.AFMaxPools {
			return nil
		}
	}
	return nil
}

// autoFillSide fills eligible opt-in pools on one side of binary b.
// Returns stop=true when the per-binary surplus budget is consumed.
func (bt *batch) autoFillSide(b *Binary, side types.Side, sign int64, perPoolCollateral, surplusCap fixed.Amount, surplusUsed *fixed.Amount, poolsFilled *int) (bool, error) {
	autoBuy := sign > 0
	keys := b.poolKeysWhere(side, autoBuy, !autoBuy)
	for _, key := range keys {
		if !key.OptIn {
			continue
		}
		if *poolsFilled >= bt.params.AFMaxPools {
			return false, nil
		}
		if *surplusUsed >= surplusCap {
			return true, nil
		}
		pool := b.Pools[key]
		if pool == nil {
			continue
		}
		price, err := b.priceFrac(side)
		if err != nil {
			return false, numErr("auto-fill", err)
		}
		tickA := tickPrice(key.Tick, bt.params.TickSize).ToAmount()
		if autoBuy && tickA <= price {
			continue
		}
		if !autoBuy && tickA >= price {
			continue
		}

		delta, quote, err := bt.maxFillable(b, side, key, tickA, perPoolCollateral, autoBuy)
		if err != nil {
			return false, err
		}
		if delta <= 0 {
			continue
		}
		c := &calc{}
		charge := c.md(tickA, delta, fixed.One)
		if c.err != nil {
			return false, numErr("auto-fill", c.err)
		}
		surplus := charge - quote.Cost
		if !autoBuy {
			surplus = quote.Cost - charge
		}
		if surplus <= 0 {
			continue
		}
		if *surplusUsed+surplus > surplusCap {
			return true, nil
		}
		sysShare := c.md(bt.params.Sigma, surplus, fixed.One)
		if c.err != nil {
			return false, numErr("auto-fill", c.err)
		}
		userShare := surplus - sysShare

		if err := bt.commitAutoFill(b, side, key, delta, quote.Cost, charge, sysShare, userShare, surplus, autoBuy); err != nil {
			return false, err
		}
		*surplusUsed += surplus
		*poolsFilled++
	}
	return false, nil
}

// maxFillable bisects the largest delta the pool can absorb while the
// post-trade price stays on the feasible side of the tick, bounded by
// the per-pool diversion cap and the pool's remaining capacity.
func (bt *batch) maxFillable(b *Binary, side types.Side, key PoolKey, tickA, perPoolCollateral fixed.Amount, autoBuy bool) (fixed.Amount, tradeQuote, error) {
	pool := b.Pools[key]
	capTokens, _, err := fixed.MulDivFloor(int64(perPoolCollateral), int64(fixed.One), int64(tickA))
	if err != nil {
		return 0, tradeQuote{}, numErr("auto-fill", err)
	}
	poolCap, err := tokenCapacity(key, pool, bt.params.TickSize)
	if err != nil {
		return 0, tradeQuote{}, numErr("auto-fill", err)
	}
	hi := fixed.Amount(capTokens)
	if poolCap < hi {
		hi = poolCap
	}
	if hi <= 0 {
		return 0, tradeQuote{}, nil
	}

	quoteAt := func(delta fixed.Amount) (tradeQuote, error) {
		if autoBuy {
			return buyCost(b, side, delta, bt.autoFillTuned(), bt.params)
		}
		return sellProceeds(b, side, delta, bt.autoFillTuned(), bt.params)
	}
	feasible := func(q tradeQuote) bool {
		if autoBuy {
			return q.PostPrice <= tickA
		}
		return q.PostPrice >= tickA
	}

	q, err := quoteAt(hi)
	if err == nil && feasible(q) {
		return hi, q, nil
	}
	// The zero trade is trivially feasible; bisect up from it.
	var lo fixed.Amount
	var loQuote tradeQuote
	for i := 0; i < autoFillSearchIterations; i++ {
		mid := (lo + hi) / 2
		if mid == lo {
			break
		}
		q, err := quoteAt(mid)
		if err == nil && feasible(q) {
			lo, loQuote = mid, q
		} else {
			hi = mid
		}
	}
	return lo, loQuote, nil
}

// autoFillTuned is the parameter view for auto-fill AMM legs: full local
// retention, so a leg cannot divert collateral and recurse into further
// auto-fills.
func (bt *batch) autoFillTuned() Tuned {
	tu := bt.tuned
	tu.Zeta = 0
	tu.FLocal = fixed.One
	return tu
}

// commitAutoFill applies one auto-fill: adjusts the traded side's
// supply, moves the AMM leg collateral and the σ surplus share into V,
// books seigniorage, consumes the pool, and emits the per-user fills,
// rebates and the AUTO_FILL event.
func (bt *batch) commitAutoFill(b *Binary, side types.Side, key PoolKey, delta, cost, charge, sysShare, userShare, surplus fixed.Amount, autoBuy bool) error {
	pool := b.Pools[key]
	tokenAllocs, err := allocByWeight(delta, pool)
	if err != nil {
		return numErr("auto-fill", err)
	}
	rebates, err := allocByWeight(userShare, pool)
	if err != nil {
		return numErr("auto-fill", err)
	}

	price := tickPrice(key.Tick, bt.params.TickSize)
	consumed := make([]allocation, len(tokenAllocs))
	for i, a := range tokenAllocs {
		unit := a.Amount
		if key.IsBuy {
			unit, err = price.MulAmount(a.Amount)
			if err != nil {
				return numErr("auto-fill", err)
			}
			if unit > pool.Shares[a.User] {
				unit = pool.Shares[a.User]
			}
		}
		consumed[i] = allocation{User: a.User, Amount: unit}
	}

	if autoBuy {
		if side == types.SideYes {
			b.QYes += delta
		} else {
			b.QNo += delta
		}
		b.V += cost + sysShare
	} else {
		if side == types.SideYes {
			b.QYes -= delta
		} else {
			b.QNo -= delta
		}
		b.V -= charge + userShare
	}
	b.Seigniorage += sysShare
	b.consume(key, consumed)
	if err := bt.state.recomputeSubsidy(b, bt.params); err != nil {
		return numErr("auto-fill", err)
	}

	for _, a := range tokenAllocs {
		if a.Amount == 0 {
			continue
		}
		buyer, seller := a.User, types.SystemAutoFillID
		if !autoBuy {
			buyer, seller = types.SystemAutoFillID, a.User
		}
		bt.addFill(types.Fill{
			Buyer:   buyer,
			Seller:  seller,
			Outcome: b.Outcome,
			Side:    side,
			Price:   price,
			Size:    a.Amount,
			Type:    types.FillAutoFill,
		})
	}

	rebateMap := make(map[string]fixed.Amount, len(rebates))
	for _, r := range rebates {
		if r.Amount > 0 {
			rebateMap[r.User] = r.Amount
		}
	}
	bt.addEvent(types.EventAutoFill, types.AutoFillReport{
		Outcome: b.Outcome,
		Side:    side,
		Tick:    key.Tick,
		Delta:   delta,
		Surplus: surplus,
		Rebates: rebateMap,
	})
	return nil
}
