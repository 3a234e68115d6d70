package engine

import (
	"errors"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// penaltyIterations bounds the asymptotic-penalty loop before the cost
// saturates at the price bound exactly.
const penaltyIterations = 8

// saturationFixup bounds the per-unit nudge that lands the saturated
// post-trade price on the bound despite rounding.
const saturationFixup = 16

var errNonPositiveProceeds = errors.New("non-positive proceeds")

// tradeQuote is the result of pricing one AMM leg.
type tradeQuote struct {
	// Cost is the collateral paid in (buy) or proceeds paid out (sell).
	Cost fixed.Amount
	// PostPrice is the post-trade side price as an amount-scale fraction.
	PostPrice fixed.Amount
	// Penalized reports that the asymptotic penalty fired.
	Penalized bool
}

// calc threads a numeric error through a chain of scaled operations.
type calc struct{ err error }

func (c *calc) md(a, b, d fixed.Amount) fixed.Amount {
	if c.err != nil {
		return 0
	}
	v, err := fixed.MulDiv(int64(a), int64(b), int64(d))
	if err != nil {
		c.err = err
	}
	return fixed.Amount(v)
}

// pow raises an amount-scale ratio to a small integer power.
func (c *calc) pow(ratio fixed.Amount, n int) fixed.Amount {
	res := fixed.One
	for i := 0; i < n; i++ {
		res = c.md(res, ratio, fixed.One)
	}
	return res
}

func numErr(op string, err error) error {
	return &types.NumericError{Op: op, Err: err}
}

// weights splits mu/(mu+nu) and nu/(mu+nu).
func weights(tu Tuned) (aFrac, bFrac fixed.Amount, err error) {
	denom := tu.Mu + tu.Nu
	if denom == 0 {
		return 0, 0, fixed.ErrDivisionByZero
	}
	c := &calc{}
	aFrac = c.md(tu.Mu, fixed.One, denom)
	bFrac = c.md(tu.Nu, fixed.One, denom)
	return aFrac, bFrac, c.err
}

// buyCost prices a buy of delta tokens on one side of a binary.
//
// The cost X solves X = Δ(μp + νp')/(μ+ν) + κΔ² with
// p' = (q_eff+Δ)/(L + f·X), which reduces to the quadratic
// f·X² + (L − f·k)·X − (k·L + m) = 0 with k = Δ·a·p + κΔ² and
// m = Δ·b·(q_eff+Δ). The larger root is the cost. If the post-trade
// price escapes p_max the asymptotic penalty inflates the cost by
// (p'/p_max)^η until the bound holds, saturating exactly at the bound
// after a fixed number of rounds.
func buyCost(b *Binary, side types.Side, delta fixed.Amount, tu Tuned, params EngineParams) (tradeQuote, error) {
	const op = "buy-cost"
	aFrac, bFrac, err := weights(tu)
	if err != nil {
		return tradeQuote{}, numErr(op, err)
	}
	c := &calc{}
	q := b.qSide(side)
	L := b.L
	p := c.md(q, fixed.One, L)

	k := c.md(c.md(delta, aFrac, fixed.One), p, fixed.One) +
		c.md(c.md(tu.Kappa, delta, fixed.One), delta, fixed.One)
	qd := q + delta
	m := c.md(c.md(delta, bFrac, fixed.One), qd, fixed.One)

	A := tu.FLocal
	B := L - c.md(tu.FLocal, k, fixed.One)
	C := -(c.md(k, L, fixed.One) + m)
	if c.err != nil {
		return tradeQuote{}, numErr(op, c.err)
	}
	x, err := fixed.SolvePositiveQuadratic(A, B, C)
	if err != nil {
		return tradeQuote{}, numErr(op, err)
	}
	if x < 0 {
		x = 0
	}

	post := func(cost fixed.Amount) fixed.Amount {
		lPost := L + c.md(tu.FLocal, cost, fixed.One)
		return c.md(qd, fixed.One, lPost)
	}

	quote := tradeQuote{Cost: x, PostPrice: post(x)}
	pmax := params.PMax.ToAmount()
	if c.err == nil && quote.PostPrice > pmax {
		quote.Penalized = true
		for i := 0; i < penaltyIterations && quote.PostPrice > pmax; i++ {
			ratio := c.md(quote.PostPrice, fixed.One, pmax)
			quote.Cost = c.md(quote.Cost, c.pow(ratio, params.Eta), fixed.One)
			quote.PostPrice = post(quote.Cost)
			if c.err != nil {
				break
			}
		}
		if c.err == nil && quote.PostPrice > pmax {
			// Saturate at the bound: f·X = (q+Δ)/p_max − L.
			lTarget := c.md(qd, fixed.One, pmax)
			quote.Cost = c.md(lTarget-L, fixed.One, tu.FLocal)
			quote.PostPrice = post(quote.Cost)
			for i := 0; i < saturationFixup && c.err == nil && quote.PostPrice > pmax; i++ {
				quote.Cost++
				quote.PostPrice = post(quote.Cost)
			}
			if c.err == nil && quote.PostPrice > pmax {
				return tradeQuote{}, numErr(op, errors.New("penalty failed to bound price"))
			}
		}
	}
	if c.err != nil {
		return tradeQuote{}, numErr(op, c.err)
	}
	return quote, nil
}

// sellProceeds prices a sell of delta tokens on one side of a binary.
//
// The proceeds X solve X = Δ(μp + νp')/(μ+ν) − κΔ² with
// p' = (q_eff−Δ)/(L − f·X); the smaller quadratic root is the
// economically meaningful one (the larger is the degenerate L/f). If the
// post-trade price escapes p_min the penalty scales the proceeds by
// (p_min/p')^η, restoring the bound, and saturates exactly at the bound
// after a fixed number of rounds.
func sellProceeds(b *Binary, side types.Side, delta fixed.Amount, tu Tuned, params EngineParams) (tradeQuote, error) {
	const op = "sell-proceeds"
	aFrac, bFrac, err := weights(tu)
	if err != nil {
		return tradeQuote{}, numErr(op, err)
	}
	c := &calc{}
	q := b.qSide(side)
	L := b.L
	p := c.md(q, fixed.One, L)

	k := c.md(c.md(delta, aFrac, fixed.One), p, fixed.One) -
		c.md(c.md(tu.Kappa, delta, fixed.One), delta, fixed.One)
	qd := q - delta
	m := c.md(c.md(delta, bFrac, fixed.One), qd, fixed.One)

	A := tu.FLocal
	B := -(L + c.md(tu.FLocal, k, fixed.One))
	C := c.md(k, L, fixed.One) + m
	if c.err != nil {
		return tradeQuote{}, numErr(op, c.err)
	}
	_, x, err := fixed.QuadraticRoots(A, B, C)
	if err != nil {
		return tradeQuote{}, numErr(op, err)
	}
	if x <= 0 {
		return tradeQuote{}, numErr(op, errNonPositiveProceeds)
	}

	post := func(cost fixed.Amount) fixed.Amount {
		lPost := L - c.md(tu.FLocal, cost, fixed.One)
		if c.err == nil && lPost <= 0 {
			c.err = errors.New("pool drained")
			return 0
		}
		return c.md(qd, fixed.One, lPost)
	}

	quote := tradeQuote{Cost: x, PostPrice: post(x)}
	pmin := params.PMin.ToAmount()
	if c.err == nil && quote.PostPrice < pmin {
		quote.Penalized = true
		for i := 0; i < penaltyIterations && c.err == nil && quote.PostPrice < pmin; i++ {
			if quote.PostPrice <= 0 {
				break
			}
			ratio := c.md(pmin, fixed.One, quote.PostPrice)
			quote.Cost = c.md(quote.Cost, c.pow(ratio, params.Eta), fixed.One)
			quote.PostPrice = post(quote.Cost)
		}
		if c.err == nil && quote.PostPrice < pmin {
			// Saturate at the bound: f·X = L − (q−Δ)/p_min.
			lTarget := c.md(qd, fixed.One, pmin)
			quote.Cost = c.md(L-lTarget, fixed.One, tu.FLocal)
			quote.PostPrice = post(quote.Cost)
			for i := 0; i < saturationFixup && c.err == nil && quote.PostPrice < pmin; i++ {
				quote.Cost++
				quote.PostPrice = post(quote.Cost)
			}
			if c.err == nil && quote.PostPrice < pmin {
				return tradeQuote{}, numErr(op, errors.New("penalty failed to bound price"))
			}
		}
	}
	if c.err != nil {
		return tradeQuote{}, numErr(op, c.err)
	}
	if quote.Cost <= 0 {
		return tradeQuote{}, numErr(op, errNonPositiveProceeds)
	}
	return quote, nil
}
