package engine

import (
	"fmt"
	"sort"

	"github.com/oddslab/marketcore/pkg/fixed"
	"github.com/oddslab/marketcore/pkg/types"
)

// batch threads one ApplyOrders invocation: the working state clone, the
// interpolated parameters, and the fill/event accumulators with
// deterministic trade-id assignment.
type batch struct {
	state  *EngineState
	params EngineParams
	tuned  Tuned
	tsMs   int64
	tickID int64

	fills  []types.Fill
	events []types.Event
	nFills int
}

func (bt *batch) stamp(f *types.Fill) {
	f.TradeID = fmt.Sprintf("t%d-%d", bt.tickID, bt.nFills)
	f.TickID = bt.tickID
	f.TsMs = bt.tsMs
	bt.nFills++
}

func (bt *batch) addFill(f types.Fill) {
	bt.stamp(&f)
	bt.fills = append(bt.fills, f)
	bt.events = append(bt.events, types.Event{Type: types.EventFill, TsMs: bt.tsMs, Payload: f})
}

func (bt *batch) addCrossFill(f types.Fill) {
	bt.stamp(&f)
	bt.fills = append(bt.fills, f)
	bt.events = append(bt.events, types.Event{Type: types.EventCrossMatch, TsMs: bt.tsMs, Payload: f})
}

func (bt *batch) addEvent(kind types.EventType, payload any) {
	bt.events = append(bt.events, types.Event{Type: kind, TsMs: bt.tsMs, Payload: payload})
}

func (bt *batch) reject(orderID, reason string) {
	bt.addEvent(types.EventOrderRejected, types.OrderRejected{OrderID: orderID, Reason: reason})
	ordersRejectedTotal.WithLabelValues(reason).Inc()
}

// ApplyOrders runs one deterministic batch: validates the entry state,
// sorts the orders by (ts_ms, order_id), places limits, cross-matches,
// then executes market orders against the book and the AMM with impact,
// penalty and auto-filling. On any fatal error the caller's state is
// left untouched. Recoverable per-order failures become ORDER_REJECTED
// events and never abort the batch.
func ApplyOrders(state *EngineState, orders []types.Order, params EngineParams, tNowMs int64) ([]types.Fill, []types.Event, error) {
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	if err := state.Validate(params); err != nil {
		return nil, nil, err
	}

	work := state.Clone()
	work.Seq++
	bt := &batch{
		state:  work,
		params: params,
		tsMs:   tNowMs,
		tickID: work.Seq,
	}
	bt.tuned = params.TunedAt(tNowMs, params.startMsFor(work), work.NActive())
	if bt.tuned.ZetaClamped {
		bt.addEvent(types.EventParamClamped, types.ParamClamped{
			Param:      "zeta",
			Configured: bt.tuned.ZetaConfigured,
			Effective:  bt.tuned.Zeta,
		})
	}

	sorted := make([]types.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TsMs != sorted[j].TsMs {
			return sorted[i].TsMs < sorted[j].TsMs
		}
		return sorted[i].OrderID < sorted[j].OrderID
	})

	var market []types.Order
	for _, o := range sorted {
		ok, err := bt.admitOrder(o)
		if err != nil {
			return nil, nil, err
		}
		if ok && o.Kind == types.KindMarket {
			market = append(market, o)
		}
	}

	if params.CMEnabled {
		for i := range bt.state.Binaries {
			if !bt.state.Binaries[i].Active {
				continue
			}
			if err := bt.crossMatch(i); err != nil {
				return nil, nil, err
			}
		}
	}

	// Slippage-checked market orders replace bt.state with their
	// scratch clone on commit, so everything below reads bt.state.
	for _, o := range market {
		if err := bt.executeMarket(o); err != nil {
			return nil, nil, err
		}
		if err := bt.state.Validate(params); err != nil {
			return nil, nil, err
		}
	}

	if err := bt.state.Validate(params); err != nil {
		return nil, nil, err
	}
	ordersAppliedTotal.Add(float64(len(sorted)))
	for _, f := range bt.fills {
		fillsTotal.WithLabelValues(string(f.Type)).Inc()
	}
	*state = *bt.state
	return bt.fills, bt.events, nil
}

// admitOrder validates one order and places limits into their pools.
// Returns whether the order was accepted.
func (bt *batch) admitOrder(o types.Order) (bool, error) {
	if o.Outcome < 0 || o.Outcome >= len(bt.state.Binaries) {
		bt.reject(o.OrderID, types.ReasonUnknownOutcome)
		return false, nil
	}
	if !bt.state.Binaries[o.Outcome].Active {
		bt.reject(o.OrderID, types.ReasonInactiveOutcome)
		return false, nil
	}
	if o.Size <= 0 {
		bt.reject(o.OrderID, types.ReasonBadSize)
		return false, nil
	}
	if o.Kind != types.KindLimit {
		return true, nil
	}

	if o.LimitPrice < bt.params.PMin || o.LimitPrice > bt.params.PMax {
		bt.reject(o.OrderID, types.ReasonBadLimitPrice)
		return false, nil
	}
	if int64(o.LimitPrice)%int64(bt.params.TickSize) != 0 {
		bt.reject(o.OrderID, types.ReasonOffTick)
		return false, nil
	}
	tick := int64(o.LimitPrice) / int64(bt.params.TickSize)
	key := PoolKey{Side: o.Side, IsBuy: o.IsBuy, Tick: tick, OptIn: o.AfOptIn}
	if err := bt.state.addToPool(o.Outcome, key, o.UserID, o.Size, bt.params); err != nil {
		return false, err
	}
	bt.addEvent(types.EventOrderAccepted, types.OrderAccepted{
		OrderID: o.OrderID,
		UserID:  o.UserID,
		Outcome: o.Outcome,
		Tick:    tick,
	})
	return true, nil
}

// executeMarket runs a MARKET order: the LOB leg, then the AMM leg with
// impact and auto-filling, committed together only if the realized
// slippage stays inside the order's cap. The legs run against a scratch
// clone so a rejection commits neither.
func (bt *batch) executeMarket(o types.Order) error {
	preFrac, err := bt.state.Binaries[o.Outcome].priceFrac(o.Side)
	if err != nil {
		return numErr("execute-market", err)
	}

	scratch := &batch{
		state:  bt.state.Clone(),
		params: bt.params,
		tuned:  bt.tuned,
		tsMs:   bt.tsMs,
		tickID: bt.tickID,
		nFills: bt.nFills,
	}

	filled, turnover, err := scratch.walkBook(o)
	if err != nil {
		return err
	}
	remaining := o.Size - filled

	var ammCost fixed.Amount
	if remaining > 0 {
		ammCost, err = scratch.executeAMMLeg(o, remaining)
		if err != nil {
			return err
		}
	}

	if o.MaxSlippage != nil {
		slip, err := realizedSlippage(preFrac, turnover+ammCost, o.Size, o.IsBuy)
		if err != nil {
			return err
		}
		if slip > *o.MaxSlippage {
			bt.reject(o.OrderID, types.ReasonSlippage)
			return nil
		}
	}

	bt.state = scratch.state
	bt.fills = append(bt.fills, scratch.fills...)
	bt.events = append(bt.events, scratch.events...)
	bt.nFills = scratch.nFills
	return nil
}

// executeAMMLeg prices and commits the AMM portion of a market order:
// supply and V updates, cross-impact diversion, and auto-filling. The
// fee is f·size·price, recorded separately on the fill.
func (bt *batch) executeAMMLeg(o types.Order, size fixed.Amount) (fixed.Amount, error) {
	b := bt.state.Binaries[o.Outcome]

	var quote tradeQuote
	var err error
	sign := int64(1)
	if o.IsBuy {
		quote, err = buyCost(b, o.Side, size, bt.tuned, bt.params)
	} else {
		sign = -1
		quote, err = sellProceeds(b, o.Side, size, bt.tuned, bt.params)
	}
	if err != nil {
		return 0, err
	}

	if o.Side == types.SideYes {
		b.QYes += fixed.Amount(sign) * size
	} else {
		b.QNo += fixed.Amount(sign) * size
	}
	diversions, err := bt.state.applyImpact(o.Outcome, sign, quote.Cost, bt.tuned, bt.params)
	if err != nil {
		return 0, err
	}

	avgPrice, err := quote.Cost.Div(size)
	if err != nil {
		return 0, numErr("execute-market", err)
	}
	price, err := avgPrice.ToPrice()
	if err != nil {
		return 0, numErr("execute-market", err)
	}
	fee, err := bt.params.Fee.Mul(quote.Cost)
	if err != nil {
		return 0, numErr("execute-market", err)
	}
	buyer, seller := o.UserID, types.SystemAMMID
	if !o.IsBuy {
		buyer, seller = types.SystemAMMID, o.UserID
	}
	bt.addFill(types.Fill{
		Buyer:   buyer,
		Seller:  seller,
		Outcome: o.Outcome,
		Side:    o.Side,
		Price:   price,
		Size:    size,
		Fee:     fee,
		Type:    types.FillAMM,
	})

	if err := bt.autoFill(o.Outcome, sign, diversions); err != nil {
		return 0, err
	}
	return quote.Cost, nil
}

// realizedSlippage is the relative move of the effective average fill
// price against the pre-trade price, at amount scale: buys pay above,
// sells receive below.
func realizedSlippage(preFrac, totalCost, size fixed.Amount, isBuy bool) (fixed.Amount, error) {
	if size <= 0 || preFrac <= 0 {
		return 0, numErr("slippage", fixed.ErrDivisionByZero)
	}
	avg, err := totalCost.Div(size)
	if err != nil {
		return 0, numErr("slippage", err)
	}
	num := avg - preFrac
	if !isBuy {
		num = preFrac - avg
	}
	if num <= 0 {
		return 0, nil
	}
	slip, err := num.Div(preFrac)
	if err != nil {
		return 0, numErr("slippage", err)
	}
	return slip, nil
}
