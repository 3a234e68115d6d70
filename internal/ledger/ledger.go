// Package ledger tracks user cash balances and token positions outside
// the engine. The scheduler feeds it every fill and payout; resolution
// reads positions back through the Lookup callback.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

type positionKey struct {
	Outcome int
	Side    types.Side
}

// Ledger is the host-side account book. All balances are amount-scale
// fixed point; system counterparty ids accumulate on a dedicated system
// account so the whole book sums to zero plus collected fees.
type Ledger struct {
	mu        sync.RWMutex
	cash      map[string]fixed.Amount
	positions map[positionKey]map[string]fixed.Amount
	logger    *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		cash:      map[string]fixed.Amount{},
		positions: map[positionKey]map[string]fixed.Amount{},
		logger:    logger,
	}
}

// Deposit credits cash to a user.
func (l *Ledger) Deposit(user string, amount fixed.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash[user] += amount
}

// Cash returns a user's cash balance.
func (l *Ledger) Cash(user string) fixed.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash[user]
}

// Position returns a user's token holding for one (outcome, side).
func (l *Ledger) Position(outcome int, side types.Side, user string) fixed.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[positionKey{Outcome: outcome, Side: side}][user]
}

// Lookup is the engine's PositionsLookup callback: holdings per user for
// one (outcome, side), copied so the engine cannot alias ledger state.
func (l *Ledger) Lookup(outcome int, side types.Side) map[string]fixed.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.positions[positionKey{Outcome: outcome, Side: side}]
	out := make(map[string]fixed.Amount, len(src))
	for u, v := range src {
		out[u] = v
	}
	return out
}

// ApplyFill posts one engine fill: tokens to the buyer, tokens from the
// seller, cash the other way, with the fee split across both sides.
func (l *Ledger) ApplyFill(f types.Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cash, err := f.Price.MulAmount(f.Size)
	if err != nil {
		return fmt.Errorf("apply fill %s: %w", f.TradeID, err)
	}
	sellerCash := cash
	if f.Type == types.FillCross {
		// Cross fills settle each leg at its own limit price.
		sellerCash, err = f.PriceNo.MulAmount(f.Size)
		if err != nil {
			return fmt.Errorf("apply fill %s: %w", f.TradeID, err)
		}
	}
	halfFee := f.Fee / 2

	if f.Type == types.FillCross {
		// The buyer takes the minted YES leg; the seller delivers the
		// NO leg from inventory.
		l.adjustPosition(f.Outcome, types.SideYes, f.Buyer, f.Size)
		l.adjustPosition(f.Outcome, types.SideNo, f.Seller, -f.Size)
	} else {
		l.adjustPosition(f.Outcome, f.Side, f.Buyer, f.Size)
		l.adjustPosition(f.Outcome, f.Side, f.Seller, -f.Size)
	}
	l.cash[f.Buyer] -= cash + halfFee
	l.cash[f.Seller] += sellerCash - (f.Fee - halfFee)
	return nil
}

// ApplyRebates credits auto-fill surplus rebates.
func (l *Ledger) ApplyRebates(rebates map[string]fixed.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range sortedUsers(rebates) {
		l.cash[u] += rebates[u]
	}
}

// ApplyPayouts credits resolution payouts and clears positions for the
// settled outcomes.
func (l *Ledger) ApplyPayouts(payouts map[string]fixed.Amount, settled []int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range sortedUsers(payouts) {
		l.cash[u] += payouts[u]
	}
	for _, outcome := range settled {
		delete(l.positions, positionKey{Outcome: outcome, Side: types.SideYes})
		delete(l.positions, positionKey{Outcome: outcome, Side: types.SideNo})
	}
}

// TotalCash sums every cash balance; tests use it as a conservation
// check against escrow and pool movements.
func (l *Ledger) TotalCash() fixed.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum fixed.Amount
	for _, v := range l.cash {
		sum += v
	}
	return sum
}

func (l *Ledger) adjustPosition(outcome int, side types.Side, user string, delta fixed.Amount) {
	key := positionKey{Outcome: outcome, Side: side}
	m := l.positions[key]
	if m == nil {
		m = map[string]fixed.Amount{}
		l.positions[key] = m
	}
	m[user] += delta
	if m[user] == 0 {
		delete(m, user)
	}
}

func sortedUsers(m map[string]fixed.Amount) []string {
	users := make([]string, 0, len(m))
	for u := range m {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
