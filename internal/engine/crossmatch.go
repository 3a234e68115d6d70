package engine

import (
	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// crossMatch pairs resting YES BUY pools with NO SELL pools inside one
// binary: a buy at tick T matches a sell at tick T_no whenever
// T·ts + T_no·ts ≥ 1 + f_match·(T+T_no)·ts/2. A match mints a YES/NO
// pair per token: the buyer pays exactly T·ts, the seller receives
// exactly T_no·ts, the fee splits evenly, and the overlap net of fee
// lands in V. Passes repeat until no pair overlaps.
func (bt *batch) crossMatch(outcome int) error {
	b := bt.state.Binaries[outcome]
	for {
		matched, err := bt.crossMatchPass(b)
		if err != nil {
			return err
		}
		if !matched {
			return nil
		}
	}
}

func (bt *batch) crossMatchPass(b *Binary) (bool, error) {
	matched := false
	for _, yk := range b.poolKeysWhere(types.SideYes, true, false) {
		ypool := b.Pools[yk]
		if ypool == nil {
			continue
		}
		for _, nk := range b.poolKeysWhere(types.SideNo, false, true) {
			npool := b.Pools[nk]
			if npool == nil {
				continue
			}
			did, err := bt.crossMatchPair(b, yk, nk)
			if err != nil {
				return false, err
			}
			matched = matched || did
			if b.Pools[yk] == nil {
				break
			}
		}
	}
	return matched, nil
}

func (bt *batch) crossMatchPair(b *Binary, yk, nk PoolKey) (bool, error) {
	ypool, npool := b.Pools[yk], b.Pools[nk]
	yPrice := tickPrice(yk.Tick, bt.params.TickSize)
	nPrice := tickPrice(nk.Tick, bt.params.TickSize)
	sum := yPrice.ToAmount() + nPrice.ToAmount()

	c := &calc{}
	feeUnit := c.md(bt.params.FMatch, sum, 2*fixed.One)
	if c.err != nil {
		return false, numErr("cross-match", c.err)
	}
	if sum < fixed.One+feeUnit {
		return false, nil
	}

	yCap, err := tokenCapacity(yk, ypool, bt.params.TickSize)
	if err != nil {
		return false, numErr("cross-match", err)
	}
	fill := yCap
	if npool.Volume < fill {
		fill = npool.Volume
	}
	if fill <= 0 {
		return false, nil
	}

	feeTotal := c.md(feeUnit, fill, fixed.One)
	vDelta := c.md(sum, fill, fixed.One) - feeTotal
	if c.err != nil {
		return false, numErr("cross-match", c.err)
	}

	// Allocate the fill to both pools before consuming their shares.
	yAllocs, err := allocByWeight(fill, ypool)
	if err != nil {
		return false, numErr("cross-match", err)
	}
	nAllocs, err := allocByWeight(fill, npool)
	if err != nil {
		return false, numErr("cross-match", err)
	}

	yConsumed := make([]allocation, len(yAllocs))
	for i, a := range yAllocs {
		charge, err := yPrice.MulAmount(a.Amount)
		if err != nil {
			return false, numErr("cross-match", err)
		}
		if charge > ypool.Shares[a.User] {
			charge = ypool.Shares[a.User]
		}
		yConsumed[i] = allocation{User: a.User, Amount: charge}
	}
	b.consume(yk, yConsumed)
	b.consume(nk, nAllocs)

	b.V += vDelta
	b.QYes += fill
	b.QNo += fill
	if err := bt.state.recomputeSubsidy(b, bt.params); err != nil {
		return false, numErr("cross-match", err)
	}

	// Pair buyers and sellers greedily in allocation order.
	i, j := 0, 0
	remY, remN := fixed.Amount(0), fixed.Amount(0)
	for i < len(yAllocs) && j < len(nAllocs) {
		if remY == 0 {
			remY = yAllocs[i].Amount
			if remY == 0 {
				i++
				continue
			}
		}
		if remN == 0 {
			remN = nAllocs[j].Amount
			if remN == 0 {
				j++
				continue
			}
		}
		size := remY
		if remN < size {
			size = remN
		}
		fee := c.md(feeTotal, size, fill)
		if c.err != nil {
			return false, numErr("cross-match", c.err)
		}
		fillRec := types.Fill{
			Buyer:    yAllocs[i].User,
			Seller:   nAllocs[j].User,
			Outcome:  b.Outcome,
			Side:     types.SideYes,
			Price:    yPrice,
			Size:     size,
			Fee:      fee,
			Type:     types.FillCross,
			PriceYes: yPrice,
			PriceNo:  nPrice,
		}
		bt.addCrossFill(fillRec)
		remY -= size
		remN -= size
		if remY == 0 {
			i++
		}
		if remN == 0 {
			j++
		}
	}
	return true, nil
}
