// Package types defines the wire vocabulary shared by the market engine
// and its host: orders, fills, events, and the engine error taxonomy.
package types

import "github.com/oddslab/marketcore/pkg/fixed"

// Side selects the YES or NO token of a binary.
type Side string

// Token sides.
const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// OrderKind discriminates market from limit orders.
type OrderKind string

// Order kinds.
const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
)

// Order is a user-submitted instruction for one binary. MARKET orders
// complete within the batch they arrive in or are rejected on slippage;
// LIMIT orders rest in tick pools until filled or canceled.
type Order struct {
	OrderID string       `json:"order_id"`
	UserID  string       `json:"user_id"`
	Outcome int          `json:"outcome_i"`
	Side    Side         `json:"side"`
	Kind    OrderKind    `json:"kind"`
	IsBuy   bool         `json:"is_buy"`
	Size    fixed.Amount `json:"size"`

	// LimitPrice is required for LIMIT orders and must sit on a tick.
	LimitPrice fixed.Price `json:"limit_price,omitempty"`

	// MaxSlippage caps the relative move of the effective average price
	// against the pre-trade price, at amount scale. Nil means uncapped.
	MaxSlippage *fixed.Amount `json:"max_slippage,omitempty"`

	// AfOptIn marks a LIMIT order as eligible for auto-filling.
	AfOptIn bool `json:"af_opt_in"`

	TsMs int64 `json:"ts_ms"`
}

// Reserved counterparty ids used on AMM and auto-fill fills. The host
// must post accounting entries for these ids to its system account.
const (
	SystemAMMID      = "sys:amm"
	SystemAutoFillID = "sys:autofill"
)
