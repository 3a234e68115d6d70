package engine

import (
	"sort"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// tickPrice converts an integer tick to its price.
func tickPrice(tick int64, tickSize fixed.Price) fixed.Price {
	return fixed.Price(tick * int64(tickSize))
}

// addToPool admits a LIMIT order to its tick pool, creating the pool
// lazily. BUY pools commit collateral (size·tick_price); SELL pools
// commit tokens.
func (st *EngineState) addToPool(outcome int, key PoolKey, user string, size fixed.Amount, params EngineParams) error {
	b := st.Binaries[outcome]
	commit := size
	if key.IsBuy {
		var err error
		commit, err = tickPrice(key.Tick, params.TickSize).MulAmount(size)
		if err != nil {
			return numErr("add-to-pool", err)
		}
	}
	pool := b.Pools[key]
	if pool == nil {
		pool = &Pool{Shares: map[string]fixed.Amount{}}
		b.Pools[key] = pool
	}
	pool.Volume += commit
	pool.Shares[user] += commit
	return nil
}

// CancelLimit withdraws a user's remaining share from a pool, pro-rata
// of any fills that already happened. The refund is collateral for BUY
// pools and tokens for SELL pools. The pool disappears when empty.
func (st *EngineState) CancelLimit(outcome int, key PoolKey, user string) (fixed.Amount, error) {
	if outcome < 0 || outcome >= len(st.Binaries) {
		return 0, &types.InputError{Reason: types.ReasonUnknownOutcome}
	}
	b := st.Binaries[outcome]
	pool := b.Pools[key]
	if pool == nil {
		return 0, &types.InputError{Reason: "no such pool"}
	}
	share, ok := pool.Shares[user]
	if !ok {
		return 0, &types.InputError{Reason: "no share in pool"}
	}
	delete(pool.Shares, user)
	pool.Volume -= share
	if pool.Volume == 0 {
		delete(b.Pools, key)
	}
	return share, nil
}

// sortedUsers returns the pool's users in lexicographic order.
func sortedUsers(p *Pool) []string {
	users := make([]string, 0, len(p.Shares))
	for u := range p.Shares {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// allocation is one user's slice of a pro-rata distribution.
type allocation struct {
	User   string
	Amount fixed.Amount
}

// allocByWeight splits total across the pool's users proportionally to
// their shares, using largest-remainder rounding so the slices sum to
// total exactly. Ties break on the lexicographically smaller user.
func allocByWeight(total fixed.Amount, p *Pool) ([]allocation, error) {
	users := sortedUsers(p)
	allocs := make([]allocation, 0, len(users))
	rems := make([]int64, 0, len(users))
	var assigned fixed.Amount
	for _, u := range users {
		q, r, err := fixed.MulDivFloor(int64(p.Shares[u]), int64(total), int64(p.Volume))
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, allocation{User: u, Amount: fixed.Amount(q)})
		rems = append(rems, r)
		assigned += fixed.Amount(q)
	}
	leftover := total - assigned
	if leftover > 0 {
		order := make([]int, len(allocs))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return rems[order[a]] > rems[order[b]]
		})
		for _, idx := range order {
			if leftover == 0 {
				break
			}
			allocs[idx].Amount++
			leftover--
		}
	}
	return allocs, nil
}

// consume reduces a pool by per-user amounts in the pool's committed
// unit, deleting the pool from the binary when empty.
func (b *Binary) consume(key PoolKey, allocs []allocation) {
	pool := b.Pools[key]
	for _, a := range allocs {
		pool.Shares[a.User] -= a.Amount
		if pool.Shares[a.User] == 0 {
			delete(pool.Shares, a.User)
		}
		pool.Volume -= a.Amount
	}
	if pool.Volume == 0 {
		delete(b.Pools, key)
	}
}

// tokenCapacity is the pool's remaining capacity in tokens.
func tokenCapacity(key PoolKey, p *Pool, tickSize fixed.Price) (fixed.Amount, error) {
	if !key.IsBuy {
		return p.Volume, nil
	}
	price := tickPrice(key.Tick, tickSize)
	q, _, err := fixed.MulDivFloor(int64(p.Volume), fixed.PriceScale, int64(price))
	return fixed.Amount(q), err
}

// walkBook fills a MARKET order against resting limit pools: buys walk
// same-side SELL pools in ascending tick, sells walk BUY pools in
// descending tick. Fills execute at the tick price with the trade fee
// recorded separately; token supply is unchanged because maker escrow
// and taker delivery offset exactly. Returns the filled token total and
// the collateral that changed hands.
func (bt *batch) walkBook(order types.Order) (filled, turnover fixed.Amount, err error) {
	b := bt.state.Binaries[order.Outcome]
	keys := b.poolKeysWhere(order.Side, !order.IsBuy, order.IsBuy)
	remaining := order.Size

	for _, key := range keys {
		if remaining == 0 {
			break
		}
		pool := b.Pools[key]
		if pool == nil {
			continue
		}
		capacity, err := tokenCapacity(key, pool, bt.params.TickSize)
		if err != nil {
			return 0, 0, numErr("walk-book", err)
		}
		if capacity <= 0 {
			continue
		}
		fill := remaining
		if capacity < fill {
			fill = capacity
		}
		price := tickPrice(key.Tick, bt.params.TickSize)

		tokenAllocs, err := allocByWeight(fill, pool)
		if err != nil {
			return 0, 0, numErr("walk-book", err)
		}
		consumed := make([]allocation, len(tokenAllocs))
		for i, a := range tokenAllocs {
			unit := a.Amount
			if key.IsBuy {
				unit, err = price.MulAmount(a.Amount)
				if err != nil {
					return 0, 0, numErr("walk-book", err)
				}
				if unit > pool.Shares[a.User] {
					unit = pool.Shares[a.User]
				}
			}
			consumed[i] = allocation{User: a.User, Amount: unit}
		}

		for _, a := range tokenAllocs {
			if a.Amount == 0 {
				continue
			}
			cash, err := price.MulAmount(a.Amount)
			if err != nil {
				return 0, 0, numErr("walk-book", err)
			}
			fee, err := bt.params.Fee.Mul(cash)
			if err != nil {
				return 0, 0, numErr("walk-book", err)
			}
			buyer, seller := order.UserID, a.User
			if !order.IsBuy {
				buyer, seller = a.User, order.UserID
			}
			bt.addFill(types.Fill{
				Buyer:   buyer,
				Seller:  seller,
				Outcome: order.Outcome,
				Side:    order.Side,
				Price:   price,
				Size:    a.Amount,
				Fee:     fee,
				Type:    types.FillLOB,
			})
			turnover += cash
		}
		b.consume(key, consumed)
		filled += fill
		remaining -= fill
	}
	return filled, turnover, nil
}
